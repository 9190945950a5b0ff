// internal/planner/parse.go
package planner

import (
	"fmt"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/goalpilot/api/schemas"
)

var jsonBlockRegex = regexp.MustCompile(fmt.Sprintf("(?s)%s(?:json)?\\s*(.*?)\\s*%s", "```", "```"))

// ParseAction extracts and validates an Action from the oracle's raw text.
// Models often wrap JSON in markdown fences or surround it with prose, so
// extraction tries a fenced block first, then falls back to the outermost
// brace pair. Any failure is reported as *schemas.MalformedActionError.
func ParseAction(response string) (schemas.Action, error) {
	response = strings.TrimSpace(response)

	var jsonStringToParse string
	matches := jsonBlockRegex.FindStringSubmatch(response)
	if len(matches) > 1 {
		jsonStringToParse = strings.TrimSpace(matches[1])
	} else {
		firstBracket := strings.Index(response, "{")
		lastBracket := strings.LastIndex(response, "}")
		if firstBracket != -1 && lastBracket != -1 && lastBracket > firstBracket {
			jsonStringToParse = response[firstBracket : lastBracket+1]
		} else {
			jsonStringToParse = response
		}
	}

	if jsonStringToParse == "" {
		return schemas.Action{}, &schemas.MalformedActionError{
			Raw:    response,
			Reason: "could not find any JSON in the oracle response",
		}
	}

	var action schemas.Action
	if err := json.Unmarshal([]byte(jsonStringToParse), &action); err != nil {
		return schemas.Action{}, &schemas.MalformedActionError{
			Raw:    response,
			Reason: fmt.Sprintf("failed to unmarshal extracted JSON: %v", err),
		}
	}

	if err := action.Validate(); err != nil {
		return schemas.Action{}, &schemas.MalformedActionError{
			Raw:    response,
			Reason: err.Error(),
		}
	}
	return action, nil
}
