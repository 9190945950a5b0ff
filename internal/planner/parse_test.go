// internal/planner/parse_test.go
package planner

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/goalpilot/api/schemas"
)

func TestParseActionFencedBlock(t *testing.T) {
	raw := "Here is my plan.\n```json\n{\"action\": \"click\", \"target\": {\"by\": \"selector\", \"value\": \"#login\"}, \"confidence\": 0.9, \"reason\": \"login button\"}\n```\nGood luck."

	action, err := ParseAction(raw)
	require.NoError(t, err)
	assert.Equal(t, schemas.ActionClick, action.Kind)
	require.NotNil(t, action.Target)
	assert.Equal(t, "#login", action.Target.Value)
}

func TestParseActionBareJSON(t *testing.T) {
	raw := `{"action": "navigate", "value": "https://example.com", "confidence": 1.0, "reason": "open target"}`

	action, err := ParseAction(raw)
	require.NoError(t, err)
	assert.Equal(t, schemas.ActionNavigate, action.Kind)
	assert.Equal(t, "https://example.com", action.Value)
}

func TestParseActionBraceFallback(t *testing.T) {
	raw := `Sure! The next step is {"action": "press_key", "value": "Enter", "confidence": 0.7, "reason": "submit"} as requested.`

	action, err := ParseAction(raw)
	require.NoError(t, err)
	assert.Equal(t, schemas.ActionPressKey, action.Kind)
	assert.Equal(t, "Enter", action.Value)
}

func TestParseActionFailures(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
	}{
		{"empty response", ""},
		{"no json at all", "I cannot decide on an action right now."},
		{"broken json", `{"action": "click", "target":`},
		{"schema violation", `{"action": "click", "confidence": 0.9, "reason": "no target"}`},
		{"unknown kind", `{"action": "fly", "confidence": 0.9, "reason": "?"}`},
		{"confidence out of range", `{"action": "noop", "confidence": 3.0, "reason": "done"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseAction(tc.raw)
			require.Error(t, err)
			var malformed *schemas.MalformedActionError
			assert.True(t, errors.As(err, &malformed), "expected MalformedActionError, got %T", err)
		})
	}
}

// FuzzParseAction guards the extraction paths against panics on arbitrary
// oracle output.
func FuzzParseAction(f *testing.F) {
	f.Add(`{"action": "noop", "confidence": 1.0, "reason": "done"}`)
	f.Add("```json\n{\"action\": \"scroll\", \"confidence\": 0.4, \"reason\": \"look around\"}\n```")
	f.Add("no json here")
	f.Add("{{{}}}")

	f.Fuzz(func(t *testing.T, raw string) {
		action, err := ParseAction(raw)
		if err != nil {
			var malformed *schemas.MalformedActionError
			if !errors.As(err, &malformed) {
				t.Fatalf("non-malformed error from parse: %v", err)
			}
			return
		}
		if verr := action.Validate(); verr != nil {
			t.Fatalf("parse returned an invalid action: %v", verr)
		}
	})
}
