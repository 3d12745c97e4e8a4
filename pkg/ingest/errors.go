package ingest

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrDuplicateDocument is returned when a library already holds a
	// document with the same content checksum.
	ErrDuplicateDocument = errors.New("duplicate document")

	// ErrAlreadyProcessed is returned when processing is requested for a
	// fully processed document without overwrite.
	ErrAlreadyProcessed = errors.New("document already processed")
)

// DuplicateError carries the identity of the pre-existing document so
// callers can link to it instead of re-uploading.
type DuplicateError struct {
	ExistingID   uint
	ExistingUUID uuid.UUID
}

// Error implements the error interface.
func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate document: content already exists as document %s", e.ExistingUUID)
}

// Unwrap makes the error match ErrDuplicateDocument under errors.Is.
func (e *DuplicateError) Unwrap() error {
	return ErrDuplicateDocument
}
