package schemas

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonathan/factor-engine/internal/schemas"
	"github.com/jonathan/factor-engine/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllSchemaFiles_ValidJSON(t *testing.T) {
	schemaFiles := []string{
		"policy.schema.json",
	}

	for _, schemaFile := range schemaFiles {
		t.Run(schemaFile, func(t *testing.T) {
			schemaPath := filepath.Join(".", schemaFile)
			data, err := os.ReadFile(schemaPath)
			require.NoError(t, err, "should be able to read schema file")

			var v interface{}
			err = json.Unmarshal(data, &v)
			assert.NoError(t, err, "schema file should be valid JSON: %s", schemaFile)
		})
	}
}

func TestSchemaFiles_ValidJSONSchema(t *testing.T) {
	schemaFiles := []string{
		"policy.schema.json",
	}

	for _, schemaFile := range schemaFiles {
		t.Run(schemaFile, func(t *testing.T) {
			schemaPath := filepath.Join(".", schemaFile)
			data, err := os.ReadFile(schemaPath)
			require.NoError(t, err)

			var schemaObj map[string]interface{}
			err = json.Unmarshal(data, &schemaObj)
			require.NoError(t, err)

			// Anything recognizable as a schema carries at least one of
			// these top-level keys.
			_, hasType := schemaObj["type"]
			_, hasSchema := schemaObj["$schema"]
			_, hasProps := schemaObj["properties"]
			_, hasDefs := schemaObj["$defs"]

			assert.True(t, hasType || hasSchema || hasProps || hasDefs,
				"schema should have at least type, $schema, properties, or $defs")
		})
	}
}

// The policy schema and types.Policy must describe the same document: the
// default policy the engine runs with has to validate cleanly.
func TestPolicySchema_AcceptsDefaultPolicy(t *testing.T) {
	schemaData, err := os.ReadFile("policy.schema.json")
	require.NoError(t, err)

	policy := types.DefaultPolicy()
	doc, err := json.Marshal(policy)
	require.NoError(t, err)

	err = schemas.ValidateJSONString(string(schemaData), string(doc))
	assert.NoError(t, err, "default policy should validate against the shipped schema")
}

func TestPolicySchema_AcceptsPartialPolicy(t *testing.T) {
	schemaData, err := os.ReadFile("policy.schema.json")
	require.NoError(t, err)

	// Absent fields keep engine defaults, so a sparse document is fine.
	doc := `{"use_trial_division": true, "trial_division_limit": 65536}`

	err = schemas.ValidateJSONString(string(schemaData), doc)
	assert.NoError(t, err)
}

func TestPolicySchema_RejectsBadDocuments(t *testing.T) {
	schemaData, err := os.ReadFile("policy.schema.json")
	require.NoError(t, err)

	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "misspelled flag",
			doc:  `{"use_trial_divison": true}`,
		},
		{
			name: "string budget",
			doc:  `{"pollard_rho_iterations": "lots"}`,
		},
		{
			name: "negative limit",
			doc:  `{"trial_division_limit": -5}`,
		},
		{
			name: "ecm stage missing curves",
			doc:  `{"ecm_stages": [{"b1": 10000}]}`,
		},
		{
			name: "ecm stage zero curves",
			doc:  `{"ecm_stages": [{"b1": 10000, "curves": 0}]}`,
		},
		{
			name: "not an object",
			doc:  `["use_trial_division"]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schemas.ValidateJSONString(string(schemaData), tt.doc)
			require.Error(t, err)

			validationErr, ok := err.(*schemas.ValidationError)
			require.True(t, ok, "expected ValidationError, got %T: %v", err, err)
			assert.Greater(t, len(validationErr.Errors), 0)
		})
	}
}

func TestPolicySchema_EcmStageRefResolvable(t *testing.T) {
	// ecm_stages items are described through a $defs reference; make sure the
	// reference resolves and enforces the stage shape.
	schemaData, err := os.ReadFile("policy.schema.json")
	require.NoError(t, err)

	good := `{"ecm_stages": [{"b1": 10000, "curves": 25}]}`
	err = schemas.ValidateJSONString(string(schemaData), good)
	assert.NoError(t, err)

	bad := `{"ecm_stages": [{"b1": 10000, "curves": 25, "threads": 8}]}`
	err = schemas.ValidateJSONString(string(schemaData), bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "threads")
}
