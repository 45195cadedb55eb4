package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/eugenenazirov/ijbridge/internal/transfer"
)

var errChoiceRequired = errors.New("choice required")

type elementPayload struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type transferRequest struct {
	Elements []elementPayload `json:"elements"`
	Active   string           `json:"active,omitempty"`
	// Choice answers a prompt. Absent means not asked yet, empty means canceled.
	Choice *string `json:"choice,omitempty"`
}

type transferResponse struct {
	Mode           string           `json:"mode"`
	Selected       bool             `json:"selected"`
	Element        *elementPayload  `json:"element,omitempty"`
	ChoiceRequired bool             `json:"choiceRequired,omitempty"`
	Choices        []elementPayload `json:"choices,omitempty"`
}

// requestViewer serves the viewer state the client sent with the request.
type requestViewer struct {
	elements []transfer.Element
	active   string
}

func (v requestViewer) ActiveElement() (transfer.Element, bool) {
	if v.active == "" {
		return transfer.Element{}, false
	}
	for _, e := range v.elements {
		if e.ID == v.active {
			return e, true
		}
	}
	return transfer.Element{}, false
}

func (v requestViewer) Elements() []transfer.Element {
	return v.elements
}

// requestDialog answers the prompt with the client's choice.
type requestDialog struct {
	choice *string
}

func (d requestDialog) Choose(_ context.Context, choices []transfer.Element) (transfer.Element, error) {
	if d.choice == nil {
		return transfer.Element{}, errChoiceRequired
	}
	if *d.choice == "" {
		return transfer.Element{}, transfer.ErrCanceled
	}
	for _, e := range choices {
		if e.ID == *d.choice {
			return e, nil
		}
	}
	return transfer.Element{}, fmt.Errorf("unknown element %q", *d.choice)
}

func (h *Handler) handleTransferSelection(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	stored, err := h.storage.GetSettings()
	if err != nil {
		writeInternalError(w, err)
		return
	}
	resolved, err := h.resolver.Resolve(stored)
	if err != nil {
		writeSettingsError(w, err)
		return
	}

	viewer := requestViewer{active: req.Active}
	for _, e := range req.Elements {
		viewer.elements = append(viewer.elements, transfer.Element{ID: e.ID, Name: e.Name})
	}

	mode := resolved.TransferSelectionMode()
	policy, err := transfer.New(mode, viewer, requestDialog{choice: req.Choice})
	if err != nil {
		writeInternalError(w, err)
		return
	}

	resp := transferResponse{Mode: string(mode)}
	selection, err := policy.Resolve(r.Context())
	switch {
	case errors.Is(err, errChoiceRequired):
		resp.ChoiceRequired = true
		resp.Choices = req.Elements
		writeJSON(w, http.StatusOK, resp)
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, "Invalid choice", err.Error())
		return
	}

	if !selection.Empty() {
		resp.Selected = true
		resp.Element = &elementPayload{ID: selection.Element.ID, Name: selection.Element.Name}
	}
	writeJSON(w, http.StatusOK, resp)
}
