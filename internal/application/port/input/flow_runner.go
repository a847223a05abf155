package input

import (
	"context"

	"uipilot/internal/domain/entity"
)

type StepEvent struct {
	Step   int
	State  entity.FlowState
	Action string
	Result string
}

type FlowRunner interface {
	Run(ctx context.Context, entry, goal entity.FlowState, onStep func(StepEvent)) (*entity.FlowResult, error)
}
