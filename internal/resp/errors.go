package resp

import "errors"

// ErrInvalidInput is returned for any malformed, truncated, or unrecognized
// frame. The server translates it into a RESP error reply and closes the
// offending connection rather than propagating it to the rest of the
// process (see internal/server/dispatch.go).
var ErrInvalidInput = errors.New("resp: invalid input")
