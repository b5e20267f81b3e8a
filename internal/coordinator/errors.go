package coordinator

import "errors"

var (
	// ErrUnknownEndpoint is returned when a request names an endpoint the
	// network does not know.
	ErrUnknownEndpoint = errors.New("coordinator: unknown endpoint")
	// ErrNotWritable is returned for writes to gadgets that accept no command.
	ErrNotWritable = errors.New("coordinator: gadget is not writable")
	// ErrInvalidValue is returned when a request argument has the wrong shape.
	ErrInvalidValue = errors.New("coordinator: invalid value")
	// ErrCommandFailed wraps network errors of on/off commands.
	ErrCommandFailed = errors.New("coordinator: command failed")
)
