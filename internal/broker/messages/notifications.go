package messages

import "time"

// Notification types broadcast to race observers. Closed set: every variant
// has a fixed payload struct on the envelope, no free-form maps.
const (
	TypeTimeAdded         = "TimeAdded"
	TypeRaceStatusChanged = "RaceStatusChanged"
	TypeSimulationStarted = "SimulationStarted"
	TypeSimulationStopped = "SimulationStopped"
)

type Notification struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`

	TimeAdded         *TimeAdded         `json:"timeAdded,omitempty"`
	RaceStatusChanged *RaceStatusChanged `json:"raceStatusChanged,omitempty"`
	SimulationStarted *SimulationStarted `json:"simulationStarted,omitempty"`
	SimulationStopped *SimulationStopped `json:"simulationStopped,omitempty"`
}

// RaceID returns the race the notification belongs to; also used as the
// Kafka partition key so per-race ordering holds.
func (n Notification) RaceID() string {
	switch {
	case n.TimeAdded != nil:
		return n.TimeAdded.RaceID
	case n.RaceStatusChanged != nil:
		return n.RaceStatusChanged.RaceID
	case n.SimulationStarted != nil:
		return n.SimulationStarted.RaceID
	case n.SimulationStopped != nil:
		return n.SimulationStopped.RaceID
	}
	return ""
}

type TimeAdded struct {
	RaceID     string    `json:"raceId"`
	RunnerID   string    `json:"runnerId"`
	Time       time.Time `json:"time"`
	TimesCount int       `json:"timesCount"`
	Completed  bool      `json:"completed"`
}

type RaceStatusChanged struct {
	RaceID     string `json:"raceId"`
	Terminated bool   `json:"terminated"`
}

type SimulationStarted struct {
	SimulationID string `json:"simulationId"`
	RaceID       string `json:"raceId"`
	Runners      int    `json:"runners"`
}

type SimulationStopped struct {
	SimulationID string `json:"simulationId"`
	RaceID       string `json:"raceId"`
	Reason       string `json:"reason"`
}

func NewTimeAdded(p TimeAdded) Notification {
	return Notification{Type: TypeTimeAdded, OccurredAt: time.Now().UTC(), TimeAdded: &p}
}

func NewRaceStatusChanged(p RaceStatusChanged) Notification {
	return Notification{Type: TypeRaceStatusChanged, OccurredAt: time.Now().UTC(), RaceStatusChanged: &p}
}

func NewSimulationStarted(p SimulationStarted) Notification {
	return Notification{Type: TypeSimulationStarted, OccurredAt: time.Now().UTC(), SimulationStarted: &p}
}

func NewSimulationStopped(p SimulationStopped) Notification {
	return Notification{Type: TypeSimulationStopped, OccurredAt: time.Now().UTC(), SimulationStopped: &p}
}
