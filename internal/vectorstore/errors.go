package vectorstore

import "errors"

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrModelMismatch     = errors.New("embedding model mismatch")
	ErrStoreUnreachable  = errors.New("vector store unreachable")
)
