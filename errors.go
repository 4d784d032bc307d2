package kvault

import (
	"errors"

	"github.com/benaskins/kvault/internal/keychain"
)

var (
	// ErrNotFound is returned when no value is stored under a key. It is the
	// backend's sentinel, so errors.Is works across layers.
	ErrNotFound = keychain.ErrNotFound

	// ErrDuplicateItem surfaces when a concurrent writer inserted the key
	// between the existence probe and the insert.
	ErrDuplicateItem = keychain.ErrDuplicateItem

	ErrTypeMismatch  = errors.New("stored value has a different type")
	ErrEmptyKey      = errors.New("empty key")
	ErrInvalidString = errors.New("string is not valid UTF-8")
)
