package models

import "github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/apperrors"

// Outcome is the success flag plus message returned across the collaborator boundary.
type Outcome struct {
	Success bool           `json:"success"`
	Kind    apperrors.Kind `json:"kind,omitempty"`
	Message string         `json:"message,omitempty"`
}

// NewOutcome converts an operation error into an Outcome.
func NewOutcome(err error) Outcome {
	if err == nil {
		return Outcome{Success: true}
	}
	return Outcome{Kind: apperrors.KindOf(err), Message: err.Error()}
}
