// Package errors provides structured error handling with i18n support.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Validation errors
	CodeInvalidInput             Code = "INVALID_INPUT"
	CodeMissingRequiredReference Code = "MISSING_REQUIRED_REFERENCE"

	// Idempotency errors
	CodeDuplicateRecord Code = "DUPLICATE_RECORD"

	// Conflict / policy errors
	CodeConflictingDecision Code = "CONFLICTING_DECISION"
	CodeRoleNotPermitted    Code = "ROLE_NOT_PERMITTED"
	CodeBoundaryViolation   Code = "BOUNDARY_VIOLATION"

	// Integrity errors, surfaced only by verification
	CodeChainBroken  Code = "CHAIN_BROKEN"
	CodeHashMismatch Code = "HASH_MISMATCH"

	// Storage errors
	CodeNotFound           Code = "NOT_FOUND"
	CodeJournalWriteFailed Code = "JOURNAL_WRITE_FAILED"
)

// Class groups codes by how a caller is expected to react to them.
type Class string

const (
	ClassValidation     Class = "validation"
	ClassIdempotency    Class = "idempotency"
	ClassConflict       Class = "conflict"
	ClassIntegrity      Class = "integrity"
	ClassInfrastructure Class = "infrastructure"
)

// Class reports the recovery class of the code.
func (c Code) Class() Class {
	switch c {
	case CodeInvalidInput, CodeMissingRequiredReference, CodeBoundaryViolation:
		return ClassValidation
	case CodeDuplicateRecord:
		return ClassIdempotency
	case CodeConflictingDecision, CodeRoleNotPermitted:
		return ClassConflict
	case CodeChainBroken, CodeHashMismatch:
		return ClassIntegrity
	default:
		return ClassInfrastructure
	}
}

// Recoverable reports whether the caller can resolve the error by changing
// its input. Integrity violations are never recoverable.
func (c Code) Recoverable() bool {
	switch c.Class() {
	case ClassValidation, ClassIdempotency, ClassConflict:
		return true
	default:
		return false
	}
}

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeInvalidInput,
		CodeMissingRequiredReference,
		CodeBoundaryViolation:
		return codes.InvalidArgument

	// FailedPrecondition - business rules reject the record
	case CodeConflictingDecision:
		return codes.FailedPrecondition

	// PermissionDenied - role hierarchy forbids the decision
	case CodeRoleNotPermitted:
		return codes.PermissionDenied

	// AlreadyExists - natural key collision
	case CodeDuplicateRecord:
		return codes.AlreadyExists

	// NotFound - record doesn't exist
	case CodeNotFound:
		return codes.NotFound

	// DataLoss - the chain no longer verifies
	case CodeChainBroken,
		CodeHashMismatch:
		return codes.DataLoss

	case CodeJournalWriteFailed:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}
