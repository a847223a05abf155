package entity

import "time"

type ActionKind string

const (
	ActionClick ActionKind = "click"
	ActionType  ActionKind = "type"
	ActionWait  ActionKind = "wait"
)

// Strategy identifies which locator produced an action, or that the
// router gave up and requires a human.
type Strategy string

const (
	StrategyAccessibility Strategy = "accessibility"
	StrategyKeyboard      Strategy = "keyboard"
	StrategyVision        Strategy = "vision"
	StrategyEscalate      Strategy = "escalate"
)

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ActionRequest is one semantic action against the target surface,
// e.g. click the control labeled "CREATE CREDENTIALS".
type ActionRequest struct {
	Target     string
	Kind       ActionKind
	Text       string
	StepID     string
	Screenshot *Screenshot
}

// ActionResult is immutable once returned by the router.
type ActionResult struct {
	Strategy  Strategy
	Success   bool
	Message   string
	Point     *Point
	Timestamp time.Time
}
