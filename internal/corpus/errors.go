package corpus

import "errors"

// ErrInvalidDocument marks documents that cannot be ingested, such as
// files that are empty after normalization.
var ErrInvalidDocument = errors.New("invalid document")
