package model

import "github.com/pkg/errors"

var (
	// ErrMalformedRecord marks a record that cannot be decoded or lacks a required field.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrConstraintViolation marks a write rejected by a storage constraint or an identity conflict.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrConnectionFailure marks a lost or unreachable storage connection.
	ErrConnectionFailure = errors.New("connection failure")
)

// ErrMergeConflict marks a stable field observed with a value different from the stored one.
var ErrMergeConflict = errors.New("merge conflict")
