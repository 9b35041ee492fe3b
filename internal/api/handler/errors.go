package handler

import (
	"errors"
	"fmt"
)

// SearchError carries the session and pipeline stage a failure belongs
// to. It wraps the stage's sentinel error so errors.Is keeps working
// across the handler boundary.
type SearchError struct {
	SessionID string
	Op        string
	BaseErr   error
	Detail    string
}

func (e *SearchError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (op:%s, session:%s): %s", e.BaseErr, e.Op, e.SessionID, e.Detail)
	}
	return fmt.Sprintf("%s (op:%s, session:%s)", e.BaseErr, e.Op, e.SessionID)
}

func (e *SearchError) Unwrap() error {
	return e.BaseErr
}

func (e *SearchError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

func newSearchError(sessionID, op string, baseErr error) error {
	return &SearchError{
		SessionID: sessionID,
		Op:        op,
		BaseErr:   baseErr,
	}
}
