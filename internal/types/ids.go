// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

type SessionID string
type MomentID string
type RunID string
type DecisionID string
type CaptureID string

// NewSessionID returns a time-ordered id so sessions sort by creation.
func NewSessionID() SessionID {
	id, err := uuid.NewV7()
	if err != nil {
		return SessionID(uuid.New().String())
	}
	return SessionID(id.String())
}

// NewMomentID is time-ordered like NewSessionID.
func NewMomentID() MomentID {
	id, err := uuid.NewV7()
	if err != nil {
		return MomentID(uuid.New().String())
	}
	return MomentID(id.String())
}

func NewRunID() RunID {
	return RunID(uuid.New().String())
}

func NewDecisionID() DecisionID {
	return DecisionID(uuid.New().String())
}

func NewCaptureID() CaptureID {
	return CaptureID(uuid.New().String())
}
