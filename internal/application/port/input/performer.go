package input

import (
	"context"

	"uipilot/internal/domain/entity"
)

// ActionPerformer is the router's contract. The flow state machine
// never issues native input itself; every motor action goes through
// this so the guards apply uniformly.
type ActionPerformer interface {
	Perform(ctx context.Context, req entity.ActionRequest) (*entity.ActionResult, error)
}
