package ginternals

import "errors"

// ErrObjectNotFound is an error corresponding to a git object not being
// found
var ErrObjectNotFound = errors.New("object not found")

// ErrObjectInvalid is returned when an object's content is corrupt: the
// header doesn't match the grammar, or the declared size doesn't match
// the actual content length
var ErrObjectInvalid = errors.New("invalid object")
