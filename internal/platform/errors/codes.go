// Package errors provides structured error handling for cutscene operations.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Session errors
	CodeAlreadyRecording   Code = "ALREADY_RECORDING"
	CodeAlreadyPlaying     Code = "ALREADY_PLAYING"
	CodeAlreadyVisualizing Code = "ALREADY_VISUALIZING"
	CodeNothingToCancel    Code = "NOTHING_TO_CANCEL"

	// Asset errors
	CodeNameConflict    Code = "NAME_CONFLICT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeEmptyFrames     Code = "EMPTY_FRAMES"
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// Storage errors
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
	CodeStorageTransaction Code = "STORAGE_TRANSACTION"
	CodeStorageMalformed   Code = "STORAGE_MALFORMED"

	// Host errors
	CodeHostInteraction Code = "HOST_INTERACTION"
)

// Kind groups codes by how callers are expected to react.
type Kind int

const (
	// KindInternal is anything not classified below.
	KindInternal Kind = iota
	// KindUser is returned to the caller; no state was changed.
	KindUser
	// KindPersistence is logged; in-memory state stays authoritative.
	KindPersistence
	// KindHostInteraction is best effort and never surfaced.
	KindHostInteraction
)

// String returns a short label for logs.
func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindPersistence:
		return "persistence"
	case KindHostInteraction:
		return "host_interaction"
	default:
		return "internal"
	}
}

// Kind classifies the code.
func (c Code) Kind() Kind {
	switch c {
	case CodeAlreadyRecording,
		CodeAlreadyPlaying,
		CodeAlreadyVisualizing,
		CodeNothingToCancel,
		CodeNameConflict,
		CodeNotFound,
		CodeEmptyFrames,
		CodeInvalidArgument:
		return KindUser

	case CodeStorageUnavailable,
		CodeStorageTransaction,
		CodeStorageMalformed:
		return KindPersistence

	case CodeHostInteraction:
		return KindHostInteraction

	default:
		return KindInternal
	}
}
