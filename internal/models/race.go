package models

import "time"

// El estado del registro se deriva de la cantidad de tiempos, nunca se guarda.
const (
	RecordStatusNotStarted = "NOT_STARTED"
	RecordStatusInProgress = "IN_PROGRESS"
	RecordStatusCompleted  = "COMPLETED"
)

type Runner struct {
	ID          uint64
	Document    string
	Name        string
	Nationality string
	BirthDate   string
	Phone       string
	Email       string
	CreatedAt   time.Time
}

type Race struct {
	ID      uint64
	RaceKey string
	Name    string

	StartAt             *time.Time
	RegistrationOpensAt *time.Time
	ParticipantLimit    int32

	// SectionCount is the number of checkpoint times a complete run requires.
	SectionCount int32

	// Terminated flips false->true once, when every registered runner has
	// SectionCount times. External admin flows may reset it; the ingest
	// pipeline itself never does.
	Terminated bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Record accumulates checkpoint times for one runner in one race.
// Times keeps arrival order as delivered by the sensors; it is never
// re-sorted, even when clock skew makes it non-monotonic.
type Record struct {
	ID             uint64
	RaceKey        string
	RunnerDocument string
	Bib            int32
	Times          []time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Status derives the record state from the race's section count.
func (r *Record) Status(sectionCount int32) string {
	switch {
	case len(r.Times) == 0:
		return RecordStatusNotStarted
	case int32(len(r.Times)) >= sectionCount:
		return RecordStatusCompleted
	default:
		return RecordStatusInProgress
	}
}

// CheckpointEvent is one sensor observation of a runner passing a timing
// point. CheckpointNumber is informational only and never used for
// sequencing.
type CheckpointEvent struct {
	RunnerID         string
	RaceID           string
	Time             time.Time
	CheckpointNumber *int32
}

type RunnerCreateInput struct {
	Document    string
	Name        string
	Nationality string
	BirthDate   string
	Phone       string
	Email       string
}

type RaceCreateInput struct {
	RaceKey          string
	Name             string
	StartAt          *time.Time
	ParticipantLimit int32
	SectionCount     int32
}
