package command

import (
	"errors"
	"fmt"
)

// Rejections. Each is rendered as a reply to the caller; none is fatal.
var (
	ErrUnknownCommand  = errors.New("command: unknown command")
	ErrUnauthorized    = errors.New("command: unauthorized")
	ErrInvalidArgument = errors.New("command: invalid argument")
	ErrIndexOutOfRange = errors.New("command: index out of range")
	ErrAlreadyExists   = errors.New("command: already exists")
	ErrNotFound        = errors.New("command: not found")
	ErrWrongContext    = errors.New("command: wrong chat context")
	ErrOwnerProtected  = errors.New("command: owner is protected")
	ErrFeatureDisabled = errors.New("command: feature disabled")
	ErrUnsupported     = errors.New("command: not supported by this platform")
	ErrPlatform        = errors.New("command: platform call failed")
)

// Argument errors. All of them match ErrInvalidArgument with errors.Is.
var (
	ErrInvalidNumber     = fmt.Errorf("%w: invalid number", ErrInvalidArgument)
	ErrNegativeDelay     = fmt.Errorf("%w: delay must not be negative", ErrInvalidArgument)
	ErrEmptyText         = fmt.Errorf("%w: text must not be empty", ErrInvalidArgument)
	ErrMalformedIdentity = fmt.Errorf("%w: malformed identity", ErrInvalidArgument)
	ErrUnknownFlag       = fmt.Errorf("%w: unknown flag", ErrInvalidArgument)
	ErrTextTooLong       = fmt.Errorf("%w: text too long", ErrInvalidArgument)

	// ErrUnknownUser is a handle the platform could not resolve.
	ErrUnknownUser = fmt.Errorf("%w: unknown user", ErrMalformedIdentity)
)
