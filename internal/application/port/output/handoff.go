package output

import (
	"context"

	"uipilot/internal/domain/entity"
)

// HandoffPort is the human-ask channel. Escalate blocks until the human
// supplies one corrective instruction; an empty instruction means stop.
type HandoffPort interface {
	Escalate(ctx context.Context, bundle *entity.EscalationBundle) (instruction string, err error)

	ShowStep(ctx context.Context, step int, state entity.FlowState, action, result string)
}
