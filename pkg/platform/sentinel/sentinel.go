// Package sentinel holds infrastructure errors that stores return (usually
// wrapped) so callers can react without depending on a driver's error types.
package sentinel

import "errors"

// ErrUnavailable means a backing service could not be reached or answered
// with a transport failure.
var ErrUnavailable = errors.New("unavailable")
