package idgen

import "github.com/google/uuid"

// NewFunc generates identifiers; tests replace it to get stable values.
var NewFunc = uuid.NewString

// New returns a new identifier.
func New() string { return NewFunc() }
