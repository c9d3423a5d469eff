package tracker

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidUser is returned for empty or malformed user ids.
	ErrInvalidUser = errors.New("invalid user id")
	// ErrInvalidLog is returned for logs that cannot be stored.
	ErrInvalidLog = errors.New("invalid daily log")
)

const maxUserIDLength = 64

// ValidateUser checks that userID is usable as a storage key.
func ValidateUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidUser)
	}
	if len(userID) > maxUserIDLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidUser, maxUserIDLength)
	}
	return nil
}
