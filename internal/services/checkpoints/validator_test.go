package checkpoints

import (
	"strings"
	"testing"
	"time"

	"github.com/AndeanRace/ChronoGate/internal/cache/rediscache"
	"github.com/AndeanRace/ChronoGate/internal/models"
	"github.com/stretchr/testify/require"
)

func TestValidateShape_Kinds(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	long := strings.Repeat("x", 51)
	n0 := int32(0)

	cases := []struct {
		name string
		ev   models.CheckpointEvent
		kind ValidationKind
	}{
		{"missing runner", models.CheckpointEvent{RaceID: "r", Time: now}, KindMissingRunnerID},
		{"runner too long", models.CheckpointEvent{RunnerID: long, RaceID: "r", Time: now}, KindRunnerIDTooLong},
		{"missing race", models.CheckpointEvent{RunnerID: "c", Time: now}, KindMissingRaceID},
		{"race too long", models.CheckpointEvent{RunnerID: "c", RaceID: long, Time: now}, KindRaceIDTooLong},
		{"empty time", models.CheckpointEvent{RunnerID: "c", RaceID: "r"}, KindEmptyTimestamp},
		{"future", models.CheckpointEvent{RunnerID: "c", RaceID: "r", Time: now.Add(2 * time.Minute)}, KindTimestampInFuture},
		{"too old", models.CheckpointEvent{RunnerID: "c", RaceID: "r", Time: now.AddDate(-1, 0, -1)}, KindTimestampTooOld},
		{"bad checkpoint number", models.CheckpointEvent{RunnerID: "c", RaceID: "r", Time: now, CheckpointNumber: &n0}, KindInvalidCheckpointNumber},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			verr := validateShapeAt(tc.ev, now)
			require.NotNil(t, verr)
			require.Equal(t, tc.kind, verr.Kind)
			require.NotEmpty(t, verr.Message)
		})
	}
}

func TestValidateShape_FirstFailureWins(t *testing.T) {
	// runnerId y raceId faltan; gana el primer chequeo
	verr := validateShapeAt(models.CheckpointEvent{}, time.Now().UTC())
	require.NotNil(t, verr)
	require.Equal(t, KindMissingRunnerID, verr.Kind)
}

func TestValidateShape_Valid(t *testing.T) {
	now := time.Now().UTC()
	n2 := int32(2)
	require.Nil(t, validateShapeAt(models.CheckpointEvent{
		RunnerID: "12345678", RaceID: "maraton-2026", Time: now, CheckpointNumber: &n2,
	}, now))

	// within clock-skew tolerance
	require.Nil(t, validateShapeAt(models.CheckpointEvent{
		RunnerID: "c", RaceID: "r", Time: now.Add(30 * time.Second),
	}, now))
}

func TestDetectSuspicious(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	ev := models.CheckpointEvent{RunnerID: "111", RaceID: "r", Time: at}

	dup, msg := DetectSuspicious(ev, nil)
	require.False(t, dup)
	require.Empty(t, msg)

	window := []rediscache.Sighting{
		{RunnerID: "222", At: at},
		{RunnerID: "111", At: at.Add(-10 * time.Second)},
	}
	dup, _ = DetectSuspicious(ev, window)
	require.False(t, dup)

	window = append(window, rediscache.Sighting{RunnerID: "111", At: at.Add(3 * time.Second)})
	dup, msg = DetectSuspicious(ev, window)
	require.True(t, dup)
	require.NotEmpty(t, msg)
}
