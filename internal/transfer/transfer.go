package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/eugenenazirov/ijbridge/internal/config"
)

// ErrCanceled is returned by a Dialog when the user dismisses it.
var ErrCanceled = errors.New("selection canceled")

// Element is a unit of viewer data, such as a layer or an image window.
type Element struct {
	ID   string
	Name string
}

// Selection is the outcome of resolving a policy. An empty selection means
// there was nothing to transfer or the user canceled.
type Selection struct {
	Element Element
	ok      bool
}

// Selected wraps an element in a non-empty selection.
func Selected(e Element) Selection {
	return Selection{Element: e, ok: true}
}

// Empty reports whether nothing was selected.
func (s Selection) Empty() bool {
	return !s.ok
}

// Viewer exposes the elements the user can transfer.
type Viewer interface {
	ActiveElement() (Element, bool)
	Elements() []Element
}

// Dialog asks the user to choose one element. It blocks until the user
// submits or cancels; cancel is reported as ErrCanceled.
type Dialog interface {
	Choose(ctx context.Context, choices []Element) (Element, error)
}

// Policy decides which viewer element is exchanged with the bridge.
type Policy interface {
	Resolve(ctx context.Context) (Selection, error)
}

// New returns the policy for mode.
func New(mode config.TransferMode, viewer Viewer, dialog Dialog) (Policy, error) {
	switch mode {
	case config.TransferActive:
		return &Active{viewer: viewer}, nil
	case config.TransferPrompt:
		return &Prompt{viewer: viewer, dialog: dialog}, nil
	default:
		return nil, fmt.Errorf("unknown transfer mode %q", mode)
	}
}

// Active selects the viewer's active element without user interaction.
type Active struct {
	viewer Viewer
}

// Resolve returns the active element, or an empty selection when there is none.
func (a *Active) Resolve(context.Context) (Selection, error) {
	element, ok := a.viewer.ActiveElement()
	if !ok {
		return Selection{}, nil
	}
	return Selected(element), nil
}

// Prompt asks the user through a Dialog.
type Prompt struct {
	viewer Viewer
	dialog Dialog
}

// Resolve shows the dialog once and blocks until the user answers. Cancel
// yields an empty selection and no error.
func (p *Prompt) Resolve(ctx context.Context) (Selection, error) {
	element, err := p.dialog.Choose(ctx, p.viewer.Elements())
	if errors.Is(err, ErrCanceled) {
		return Selection{}, nil
	}
	if err != nil {
		return Selection{}, fmt.Errorf("choose element: %w", err)
	}
	return Selected(element), nil
}
