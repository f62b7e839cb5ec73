package pgrace

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AndeanRace/ChronoGate/internal/models"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *Storage {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "chronogate_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/chronogate_test?sslmode=disable"
	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func seedRace(t *testing.T, st *Storage, raceKey string, sections int32, docs ...string) {
	t.Helper()
	ctx := context.Background()

	_, err := st.CreateRace(ctx, models.RaceCreateInput{
		RaceKey:      raceKey,
		Name:         "Media Maratón de Prueba",
		SectionCount: sections,
	})
	require.NoError(t, err)

	in := make([]models.RunnerCreateInput, 0, len(docs))
	for _, d := range docs {
		in = append(in, models.RunnerCreateInput{Document: d, Name: "Runner " + d})
	}
	_, err = st.CreateOrGetRunners(ctx, in)
	require.NoError(t, err)

	created, err := st.RegisterRunners(ctx, raceKey, docs)
	require.NoError(t, err)
	require.Equal(t, len(docs), created)
}

func TestPGRace_AppendFlow(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	seedRace(t, st, "race-1", 3, "10101010")

	now := time.Now().UTC().Truncate(time.Millisecond)

	res, err := st.AppendCheckpointTime(ctx, "race-1", "10101010", now)
	require.NoError(t, err)
	require.Equal(t, AppendUpdated, res)

	rec, err := st.GetRecord(ctx, "race-1", "10101010")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Len(t, rec.Times, 1)
	require.Equal(t, int32(1), rec.Bib)

	// Arrival order must survive even when clock skew makes times go back.
	earlier := now.Add(-time.Minute)
	res, err = st.AppendCheckpointTime(ctx, "race-1", "10101010", earlier)
	require.NoError(t, err)
	require.Equal(t, AppendUpdated, res)

	rec, err = st.GetRecord(ctx, "race-1", "10101010")
	require.NoError(t, err)
	require.Len(t, rec.Times, 2)
	require.True(t, rec.Times[1].Before(rec.Times[0]))

	res, err = st.AppendCheckpointTime(ctx, "race-1", "10101010", now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, AppendUpdated, res)

	// Fourth hit: already complete, no mutation.
	res, err = st.AppendCheckpointTime(ctx, "race-1", "10101010", now.Add(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, AppendRejectedAlreadyComplete, res)

	rec, err = st.GetRecord(ctx, "race-1", "10101010")
	require.NoError(t, err)
	require.Len(t, rec.Times, 3)

	res, err = st.AppendCheckpointTime(ctx, "race-1", "nobody", now)
	require.NoError(t, err)
	require.Equal(t, AppendNotFound, res)
}

func TestPGRace_AppendConcurrentNeverOverflows(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	seedRace(t, st, "race-c", 3, "20202020")

	// 20 duplicate sensor deliveries racing for 3 slots.
	var wg sync.WaitGroup
	updated := make(chan AppendResult, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			res, err := st.AppendCheckpointTime(ctx, "race-c", "20202020", time.Now().UTC())
			require.NoError(t, err)
			updated <- res
		}(i)
	}
	wg.Wait()
	close(updated)

	wins := 0
	for res := range updated {
		if res == AppendUpdated {
			wins++
		}
	}
	require.Equal(t, 3, wins)

	rec, err := st.GetRecord(ctx, "race-c", "20202020")
	require.NoError(t, err)
	require.Len(t, rec.Times, 3)
}

func TestPGRace_TerminateAndReset(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	seedRace(t, st, "race-t", 1, "30303030")

	flipped, err := st.TerminateRace(ctx, "race-t")
	require.NoError(t, err)
	require.True(t, flipped)

	// Second flip is a no-op.
	flipped, err = st.TerminateRace(ctx, "race-t")
	require.NoError(t, err)
	require.False(t, flipped)

	race, err := st.GetRaceByKey(ctx, "race-t")
	require.NoError(t, err)
	require.True(t, race.Terminated)

	_, err = st.AppendCheckpointTime(ctx, "race-t", "30303030", time.Now().UTC())
	require.NoError(t, err)

	require.NoError(t, st.ResetRaceRecords(ctx, "race-t"))

	race, err = st.GetRaceByKey(ctx, "race-t")
	require.NoError(t, err)
	require.False(t, race.Terminated)

	rec, err := st.GetRecord(ctx, "race-t", "30303030")
	require.NoError(t, err)
	require.Len(t, rec.Times, 0)
}

func TestPGRace_RegisterRunnersAssignsBibs(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	seedRace(t, st, "race-b", 2, "40404040", "50505050")

	recs, err := st.ListRecordsByRace(ctx, "race-b")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, int32(1), recs[0].Bib)
	require.Equal(t, int32(2), recs[1].Bib)

	// Re-registering is a no-op; unknown documents are skipped.
	created, err := st.RegisterRunners(ctx, "race-b", []string{"40404040", "desconocido"})
	require.NoError(t, err)
	require.Equal(t, 0, created)
}

func TestPGRace_RegisterRunnersConcurrentBibsAreUnique(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	seedRace(t, st, "race-k", 2)

	in := make([]models.RunnerCreateInput, 0, 10)
	for i := 0; i < 10; i++ {
		in = append(in, models.RunnerCreateInput{
			Document: "6060606" + string(rune('0'+i)),
			Name:     "Runner concurrente",
		})
	}
	_, err := st.CreateOrGetRunners(ctx, in)
	require.NoError(t, err)

	// Two admins registering different batches at the same time must not
	// hand out the same bib twice.
	var wg sync.WaitGroup
	for batch := 0; batch < 2; batch++ {
		docs := make([]string, 0, 5)
		for i := batch * 5; i < batch*5+5; i++ {
			docs = append(docs, in[i].Document)
		}
		wg.Add(1)
		go func(docs []string) {
			defer wg.Done()
			created, err := st.RegisterRunners(ctx, "race-k", docs)
			require.NoError(t, err)
			require.Equal(t, 5, created)
		}(docs)
	}
	wg.Wait()

	recs, err := st.ListRecordsByRace(ctx, "race-k")
	require.NoError(t, err)
	require.Len(t, recs, 10)

	seen := make(map[int32]bool, len(recs))
	for _, r := range recs {
		require.False(t, seen[r.Bib], "bib %d repetido", r.Bib)
		seen[r.Bib] = true
	}
}
