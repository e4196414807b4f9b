package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jonathan/factor-engine/internal/schemas"
	"github.com/jonathan/factor-engine/internal/types"
)

// loadPolicy reads an algorithm policy JSON file, validates it against the
// shipped schema when the schema file can be located, and decodes it over the
// default policy so absent fields keep their defaults.
func loadPolicy(path string) (*types.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}

	schemaPath := schemas.ResolveSchemaPath(filepath.Join("schemas", "policy.schema.json"))
	if schemaPath != "" {
		if err := schemas.ValidateJSON(schemaPath, path); err != nil {
			var validationErr *schemas.ValidationError
			if errors.As(err, &validationErr) {
				return nil, fmt.Errorf("policy file %s is invalid: %w", path, err)
			}
			// A broken or unreadable schema should not block a local run.
			_, _ = fmt.Fprintf(os.Stderr, "Warning: could not validate policy against schema: %v\n", err)
		}
	}

	policy := types.DefaultPolicy()
	if err := json.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	policy.Normalize()

	if !policy.Enabled() {
		return nil, fmt.Errorf("policy file %s disables every algorithm stage", path)
	}

	return &policy, nil
}
