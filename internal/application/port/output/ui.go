package output

import (
	"context"

	"uipilot/internal/domain/entity"
)

// UIPort is the accessibility/input backend: it can locate elements by
// semantic label, search the surface for text, and inject native input.
// It is opaque beyond locate and activate.
type UIPort interface {
	ClickLabel(ctx context.Context, label string) error
	TypeLabel(ctx context.Context, label, text string) error

	SearchClick(ctx context.Context, text string) error
	SearchType(ctx context.Context, target, text string) error

	ClickAt(ctx context.Context, p entity.Point) error
	TypeAt(ctx context.Context, p entity.Point, text string) error

	Navigate(ctx context.Context, url string) error
	Screenshot(ctx context.Context) (*entity.Screenshot, error)
	VisibleText(ctx context.Context) (string, error)
	CurrentURL() string
	Close()
}
