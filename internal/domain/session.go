package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxDisplayNameLen = 36

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
)

// LocalSession is the local participant's identity. Exactly one instance
// exists while joined.
type LocalSession struct {
	ID          SessionID `json:"id"`
	DisplayName string    `json:"displayName"`
}

// NewLocalSession is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewLocalSession(displayName string) (*LocalSession, error) {
	if len(displayName) == 0 {
		return nil, ErrDisplayNameEmpty
	}
	if len(displayName) > MaxDisplayNameLen {
		return nil, ErrDisplayNameTooLong
	}
	return &LocalSession{ID: SessionID(uuid.NewString()), DisplayName: displayName}, nil
}
