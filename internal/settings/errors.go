package settings

import "errors"

var (
	// ErrPersist reports that a mutation could not be durably flushed. The
	// in-memory record was restored to its previous value.
	ErrPersist = errors.New("settings: persistence failure")

	// ErrInvalidRecord reports a mutation that would break a record invariant.
	ErrInvalidRecord = errors.New("settings: invalid record")

	// ErrInvalidIdentity reports a malformed or non-positive user identifier.
	ErrInvalidIdentity = errors.New("settings: invalid identity")

	// ErrUnknownDriver reports an unsupported store driver name.
	ErrUnknownDriver = errors.New("settings: unknown store driver")

	// ErrDecode reports a persisted document that cannot be parsed.
	ErrDecode = errors.New("settings: decode failure")
)
