package channel

import "errors"

var (
	// ErrNoChannel indicates the outbound message targets an unregistered channel.
	ErrNoChannel = errors.New("channel: unknown channel")

	// ErrDuplicateChannel indicates a channel name is already registered.
	ErrDuplicateChannel = errors.New("channel: duplicate channel name")

	// ErrNoInbox indicates the inbox callback has not been set.
	ErrNoInbox = errors.New("channel: inbox not set")

	// ErrDenied indicates the message was dropped by the allow-list.
	ErrDenied = errors.New("channel: chat not served")

	// ErrSendFailed wraps platform errors returned while delivering a message.
	ErrSendFailed = errors.New("channel: send failed")

	// ErrIdentityNotFound indicates a handle could not be resolved to a user.
	ErrIdentityNotFound = errors.New("channel: identity not found")
)
