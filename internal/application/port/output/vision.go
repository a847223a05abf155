package output

import (
	"context"

	"uipilot/internal/domain/entity"
)

// VisionPort is the external visual interpreter. Its answers are
// advisory: callers corroborate with an independent signal (stall hash,
// re-classification) before trusting them.
type VisionPort interface {
	// LocateTarget asks for pixel coordinates of the described target.
	// found=false means the model could not see it.
	LocateTarget(ctx context.Context, shot *entity.Screenshot, target string) (p entity.Point, found bool, err error)

	// ClassifyState maps a screenshot onto one of the allowed states.
	ClassifyState(ctx context.Context, shot *entity.Screenshot, states []entity.FlowState) (entity.FlowState, error)

	// Reflect analyzes a failed action against the evidence and returns
	// the raw model answer for the reflection use case to parse.
	Reflect(ctx context.Context, prompt string) (string, error)
}
