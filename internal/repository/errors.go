package repository

import "errors"

var (
	// ErrNotFound is returned when no record or document file matches
	ErrNotFound = errors.New("not found")

	// ErrCorruptDocument marks a document file that cannot be read or parsed
	ErrCorruptDocument = errors.New("corrupt document file")

	// ErrInvalidDocument is returned by Save for documents that cannot be
	// addressed on disk
	ErrInvalidDocument = errors.New("invalid document")
)
