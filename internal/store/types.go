package store

import "errors"

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// stateKeyPrefix namespaces per-user level state.
const stateKeyPrefix = "waterLevel_"

// StateKey returns the persistence key holding a user's tank level.
func StateKey(userID string) string {
	return stateKeyPrefix + userID
}

// MonitorState is the explicit dispatch-monitor state owned by one monitor instance.
type MonitorState struct {
	UserID          string
	Level           int
	AutoRequestSent bool
}
