// Package observability renders job state, equation analyses, and prescan
// reports for the CLI's verbose mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/factor-engine/internal/batch"
	"github.com/jonathan/factor-engine/internal/equation"
	"github.com/jonathan/factor-engine/internal/types"
)

const (
	boxWidth       = 60 // outer width of report boxes
	maxItemsToShow = 5  // list entries before eliding the rest
)

// Printer renders boxed reports to a writer, usually stdout.
type Printer struct {
	out io.Writer
}

func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox draws content under a titled border. Lines wider than the box
// are cut, not wrapped.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintJob outputs a human-readable summary of a job's final state.
func (p *Printer) PrintJob(job *types.Job) {
	if job == nil {
		return
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("ID:       %s\n", job.ID))
	sb.WriteString(fmt.Sprintf("N:        %s\n", truncateMiddle(job.N, 45)))
	sb.WriteString(fmt.Sprintf("Mode:     %s\n", job.Mode))
	sb.WriteString(fmt.Sprintf("Status:   %s\n", job.Status))
	sb.WriteString(fmt.Sprintf("Progress: %.1f%%\n", job.ProgressPercent))
	if job.CurrentStage != "" {
		sb.WriteString(fmt.Sprintf("Stage:    %s\n", job.CurrentStage))
	}

	if len(job.FactorsFound) > 0 {
		sb.WriteString("\nFactors:\n")
		count := min(len(job.FactorsFound), maxItemsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  • %s\n", truncateMiddle(job.FactorsFound[i], 45)))
		}
		if len(job.FactorsFound) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(job.FactorsFound)-maxItemsToShow))
		}
	}

	if job.ErrorMessage != "" {
		sb.WriteString(fmt.Sprintf("\nError: %s\n", job.ErrorMessage))
	}
	if job.TotalTimeSeconds > 0 {
		sb.WriteString(fmt.Sprintf("\nTime:     %.2fs\n", job.TotalTimeSeconds))
	}

	p.printBox("FACTORIZATION JOB", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintResults outputs the recorded factors with provenance.
func (p *Printer) PrintResults(results []types.JobResult) {
	if len(results) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d prime factors:\n\n", len(results)))

	count := min(len(results), maxItemsToShow)
	for i := 0; i < count; i++ {
		res := results[i]
		sb.WriteString(fmt.Sprintf("• %s\n", truncateMiddle(res.Factor, 45)))

		marks := []string{}
		if res.IsPrime {
			marks = append(marks, "✓prime")
		}
		if len(res.Certificate) > 0 {
			marks = append(marks, "✓certificate")
		}
		marks = append(marks, res.FoundByAlgorithm)
		sb.WriteString(fmt.Sprintf("  [%s] %dms\n", strings.Join(marks, " "), res.ElapsedMS))
		if i < count-1 {
			sb.WriteString("\n")
		}
	}

	if len(results) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more factors", len(results)-maxItemsToShow))
	}

	p.printBox("FACTORS FOUND", sb.String())
}

// PrintBounds outputs the equation analysis for a target: the derived search
// window and how it was obtained.
func (p *Printer) PrintBounds(n string, digits int, bounds equation.Bounds) {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("N:         %s\n", truncateMiddle(n, 40)))
	sb.WriteString(fmt.Sprintf("Digits:    %d\n", digits))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Lower:     %s\n", truncateMiddle(bounds.Lower.String(), 40)))
	sb.WriteString(fmt.Sprintf("Upper:     %s\n", truncateMiddle(bounds.Upper.String(), 40)))
	sb.WriteString(fmt.Sprintf("Crossover: %s\n", truncateMiddle(bounds.Root.String(), 40)))
	sb.WriteString("\n")

	if bounds.Converged {
		sb.WriteString(fmt.Sprintf("Newton converged in %d iterations\n", bounds.Iterations))
	} else {
		sb.WriteString(fmt.Sprintf("Newton did not converge (%d iterations)\n", bounds.Iterations))
	}
	if bounds.UsedFallback {
		sb.WriteString("Lower bound from digit-count heuristic\n")
	}

	strategy := equation.SearchStrategy(bounds.Lower, bounds.Upper)
	sb.WriteString(fmt.Sprintf("Span:      %v digits\n", strategy["span_digits"]))
	if est, ok := strategy["estimated_primes"]; ok {
		sb.WriteString(fmt.Sprintf("Est. primes to test: %.3g\n", est))
	}

	p.printBox("EQUATION ANALYSIS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintPrescan outputs the batch GCD prescan report.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintPrescan(reports []batch.Report) {
	shared := 0
	for _, r := range reports {
		if len(r.SharedFactors) > 0 {
			shared++
		}
	}

	if shared == 0 {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "✅ NO SHARED FACTORS IN BATCH")
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d of %d inputs share factors:\n\n", shared, len(reports)))

	printed := 0
	for _, r := range reports {
		if len(r.SharedFactors) == 0 {
			continue
		}
		if printed == maxItemsToShow {
			sb.WriteString(fmt.Sprintf("\n... and %d more inputs", shared-maxItemsToShow))
			break
		}
		if printed > 0 {
			sb.WriteString("\n")
		}

		label := fmt.Sprintf("input %d", r.Index)
		if r.Line > 0 {
			label = fmt.Sprintf("line %d", r.Line)
		}
		sb.WriteString(fmt.Sprintf("⚠ %s: %s\n", label, truncateMiddle(r.N, 40)))

		factors := strings.Join(r.SharedFactors, ", ")
		if len(factors) > 40 {
			factors = factors[:37] + "..."
		}
		sb.WriteString(fmt.Sprintf("  shared: %s\n", factors))
		if r.Trivial {
			sb.WriteString("  fully factored by prescan\n")
		} else {
			sb.WriteString(fmt.Sprintf("  remaining: %s\n", truncateMiddle(r.Remaining, 40)))
		}
		printed++
	}

	p.printBox("BATCH PRESCAN", strings.TrimSuffix(sb.String(), "\n"))
}

// truncateMiddle shortens long decimal strings, keeping both ends so the
// magnitude and final digits stay visible.
func truncateMiddle(s string, n int) string {
	if len(s) <= n || n < 10 {
		return s
	}
	half := (n - 3) / 2
	return s[:half] + "..." + s[len(s)-half:]
}
