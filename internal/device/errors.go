package device

import "errors"

// ErrBackendFailure marks errors originating in the numeric backend:
// allocation failures, kernel errors, or submission to a closed backend.
// Deferred kernel errors surface from Synchronize wrapped in it.
var ErrBackendFailure = errors.New("backend failure")
