package schemas

import (
	"fmt"
	"strconv"
	"strings"
)

// ActionKind enumerates the atomic browser operations the oracle may propose.
type ActionKind string

const (
	ActionClick    ActionKind = "click"
	ActionType     ActionKind = "type"
	ActionNavigate ActionKind = "navigate"
	ActionScroll   ActionKind = "scroll"
	ActionHover    ActionKind = "hover"
	ActionPressKey ActionKind = "press_key"
	ActionNoop     ActionKind = "noop"
)

// LocatorStrategy defines how a Locator value should be resolved against the page.
type LocatorStrategy string

const (
	// BySelector resolves the value as a CSS selector. When several elements
	// match, the first match wins.
	BySelector LocatorStrategy = "selector"
	// ByID resolves the value as an element id attribute.
	ByID LocatorStrategy = "id"
	// ByCoords interprets the value as absolute "x,y" viewport coordinates.
	ByCoords LocatorStrategy = "coords"
)

// Locator identifies a target page element as a (strategy, value) pair.
type Locator struct {
	By    LocatorStrategy `json:"by"`
	Value string          `json:"value"`
}

// Coords parses a ByCoords locator value into x,y integers.
func (l Locator) Coords() (int, int, error) {
	parts := strings.SplitN(l.Value, ",", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid coords format: %q", l.Value)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid x coordinate: %q", parts[0])
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid y coordinate: %q", parts[1])
	}
	return int(x), int(y), nil
}

// Action is one atomic browser operation proposed by the reasoning oracle,
// together with the oracle's confidence and rationale.
type Action struct {
	Kind       ActionKind `json:"action"`
	Target     *Locator   `json:"target,omitempty"`
	Value      string     `json:"value,omitempty"`
	Confidence float64    `json:"confidence"`
	Reason     string     `json:"reason"`
}

var validKinds = map[ActionKind]bool{
	ActionClick:    true,
	ActionType:     true,
	ActionNavigate: true,
	ActionScroll:   true,
	ActionHover:    true,
	ActionPressKey: true,
	ActionNoop:     true,
}

var validStrategies = map[LocatorStrategy]bool{
	BySelector: true,
	ByID:       true,
	ByCoords:   true,
}

// Validate checks the Action against the schema rules: the kind must be one
// of the enumerated values, target presence must match the kind's rule, and
// confidence must lie in [0,1].
func (a Action) Validate() error {
	if !validKinds[a.Kind] {
		return fmt.Errorf("unknown action kind: %q", a.Kind)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", a.Confidence)
	}
	switch a.Kind {
	case ActionClick, ActionType, ActionHover:
		if a.Target == nil {
			return fmt.Errorf("action %q requires a target", a.Kind)
		}
	case ActionNavigate:
		if a.Value == "" {
			return fmt.Errorf("action %q requires a value (url)", a.Kind)
		}
	case ActionPressKey:
		if a.Value == "" {
			return fmt.Errorf("action %q requires a value (key)", a.Kind)
		}
	}
	if a.Target != nil {
		if !validStrategies[a.Target.By] {
			return fmt.Errorf("unknown locator strategy: %q", a.Target.By)
		}
		if a.Target.Value == "" {
			return fmt.Errorf("locator value must not be empty")
		}
		if a.Target.By == ByCoords {
			if _, _, err := a.Target.Coords(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Equal reports whether two actions are semantically identical. Used by the
// loop's duplicate suppression.
func (a Action) Equal(other Action) bool {
	if a.Kind != other.Kind || a.Value != other.Value {
		return false
	}
	if (a.Target == nil) != (other.Target == nil) {
		return false
	}
	if a.Target != nil && *a.Target != *other.Target {
		return false
	}
	return true
}
