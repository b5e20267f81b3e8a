package ncp

import "errors"

var (
	ErrClosed  = errors.New("ncp: link closed")
	ErrTimeout = errors.New("ncp: request timed out")
	ErrRemote  = errors.New("ncp: adapter rejected request")
	// ErrUnknownCluster is returned for cluster or command names the registry does not know.
	ErrUnknownCluster = errors.New("ncp: unknown cluster or command")
)
