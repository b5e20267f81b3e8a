package gadget

import "errors"

var (
	// ErrMalformedAuxID is returned when an auxId cannot be parsed.
	ErrMalformedAuxID = errors.New("gadget: malformed auxId")

	// ErrUnclassifiable is returned when an endpoint maps to no gadget.
	// It is a normal outcome for endpoints this gateway does not model.
	ErrUnclassifiable = errors.New("gadget: endpoint not classifiable")
)
