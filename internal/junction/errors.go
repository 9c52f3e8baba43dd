package junction

import "errors"

var (
	// ErrInvalidArgument is returned for a road or crossing ID outside {1, 2}.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrModeUnsupported is returned for crossing requests on an automatic junction.
	ErrModeUnsupported = errors.New("operation not supported in this mode")
	// ErrClosed is returned once the sequencer has been closed.
	ErrClosed = errors.New("sequencer closed")
)
