package checkpoints

import "fmt"

// Kind of shape-validation failure. One kind per check, first failing check
// wins.
type ValidationKind string

const (
	KindMissingRunnerID         ValidationKind = "MISSING_RUNNER_ID"
	KindRunnerIDTooLong         ValidationKind = "RUNNER_ID_TOO_LONG"
	KindMissingRaceID           ValidationKind = "MISSING_RACE_ID"
	KindRaceIDTooLong           ValidationKind = "RACE_ID_TOO_LONG"
	KindEmptyTimestamp          ValidationKind = "EMPTY_TIMESTAMP"
	KindTimestampInFuture       ValidationKind = "TIMESTAMP_IN_FUTURE"
	KindTimestampTooOld         ValidationKind = "TIMESTAMP_TOO_OLD"
	KindInvalidCheckpointNumber ValidationKind = "INVALID_CHECKPOINT_NUMBER"
)

// ValidationError: malformed client input, HTTP 400. Detected before any
// side effect.
type ValidationError struct {
	Kind    ValidationKind
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NotFoundError: the referenced race or runner is absent, HTTP 404. Los
// mensajes van en español porque los leen los operadores de la carrera.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

var (
	ErrRaceNotFound        = &NotFoundError{Message: "La carrera no existe"}
	ErrRunnerNotRegistered = &NotFoundError{Message: "El corredor no está inscrito en esta carrera"}
)

// PersistenceError: record-store I/O failure on the critical path, HTTP 500.
// The generic message goes to the caller, the wrapped cause to the logs.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
