package checkpoints

import (
	"time"

	"github.com/AndeanRace/ChronoGate/internal/cache/rediscache"
	"github.com/AndeanRace/ChronoGate/internal/models"
)

const (
	maxIDLength = 50

	// Sensors and server clocks drift; a minute of tolerance avoids
	// rejecting honest hits.
	futureTolerance = time.Minute
	maxEventAge     = 365 * 24 * time.Hour

	// Two hits for the same runner closer than this are flagged as a
	// probable duplicate. Advisory only.
	duplicateWindow = 5 * time.Second
)

// ValidateShape runs the pure shape/business checks on a single event, in a
// fixed order, stopping at the first failure. No I/O.
func ValidateShape(ev models.CheckpointEvent) *ValidationError {
	return validateShapeAt(ev, time.Now().UTC())
}

func validateShapeAt(ev models.CheckpointEvent, now time.Time) *ValidationError {
	if ev.RunnerID == "" {
		return &ValidationError{Kind: KindMissingRunnerID, Message: "CorredorId es requerido y no puede estar vacío"}
	}
	if len(ev.RunnerID) > maxIDLength {
		return &ValidationError{Kind: KindRunnerIDTooLong, Message: "CorredorId no puede exceder 50 caracteres"}
	}
	if ev.RaceID == "" {
		return &ValidationError{Kind: KindMissingRaceID, Message: "CarreraId es requerido y no puede estar vacío"}
	}
	if len(ev.RaceID) > maxIDLength {
		return &ValidationError{Kind: KindRaceIDTooLong, Message: "CarreraId no puede exceder 50 caracteres"}
	}
	if ev.Time.IsZero() {
		return &ValidationError{Kind: KindEmptyTimestamp, Message: "El tiempo no puede estar vacío"}
	}
	if ev.Time.After(now.Add(futureTolerance)) {
		return &ValidationError{Kind: KindTimestampInFuture, Message: "El tiempo no puede estar en el futuro"}
	}
	if ev.Time.Before(now.Add(-maxEventAge)) {
		return &ValidationError{Kind: KindTimestampTooOld, Message: "El tiempo no puede ser más antiguo de 1 año"}
	}
	if ev.CheckpointNumber != nil && *ev.CheckpointNumber < 1 {
		return &ValidationError{Kind: KindInvalidCheckpointNumber, Message: "NumeroCheckpoint debe ser mayor a 0"}
	}
	return nil
}

// DetectSuspicious flags the event as a probable duplicate when the supplied
// recent-sightings window holds another hit for the same runner within
// duplicateWindow of this one. Never blocks ingestion.
func DetectSuspicious(ev models.CheckpointEvent, window []rediscache.Sighting) (bool, string) {
	for _, s := range window {
		if s.RunnerID != ev.RunnerID {
			continue
		}
		d := ev.Time.Sub(s.At)
		if d < 0 {
			d = -d
		}
		if d < duplicateWindow {
			return true, "Este dato es muy similar a uno reciente (posible duplicado)"
		}
	}
	return false, ""
}
