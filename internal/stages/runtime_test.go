package stages

import (
	"errors"
	"strings"

	"github.com/jonathan/factor-engine/internal/types"
)

// errStop stands in for the engine's control errors in stage tests.
var errStop = errors.New("stop requested")

// harness collects stage output and can fail the checkpoint after a set
// number of reports, the way a pause request would.
type harness struct {
	logs      []string
	progress  []Progress
	failAfter int
}

func (h *harness) runtime() Runtime {
	return Runtime{
		StageIndex: 1,
		Log: func(level types.LogLevel, message string, payload map[string]any) {
			h.logs = append(h.logs, message)
		},
		Checkpoint: func(p Progress) error {
			h.progress = append(h.progress, p)
			if h.failAfter > 0 && len(h.progress) >= h.failAfter {
				return errStop
			}
			return nil
		},
	}
}

func (h *harness) loggedContaining(fragment string) bool {
	for _, msg := range h.logs {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

func (h *harness) lastProgress() Progress {
	if len(h.progress) == 0 {
		return Progress{}
	}
	return h.progress[len(h.progress)-1]
}
