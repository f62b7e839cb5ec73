package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/AndeanRace/ChronoGate/internal/integrations/objstore"
	"github.com/pkg/errors"
)

const keyPrefix = "sensor_data"

// ArchivedEvent is the payload written to the backup bucket for every valid
// sensor hit. Forensic trail only, never the system of record.
type ArchivedEvent struct {
	RaceID           string    `json:"raceId"`
	RunnerID         string    `json:"runnerId"`
	Time             time.Time `json:"time"`
	RecordedAt       time.Time `json:"recordedAt"`
	CheckpointNumber *int32    `json:"checkpointNumber,omitempty"`
}

type Stats struct {
	RaceID        string     `json:"raceId"`
	TotalObjects  int        `json:"totalObjects"`
	TotalBytes    int64      `json:"totalBytes"`
	TotalMB       float64    `json:"totalMB"`
	UniqueRunners int        `json:"uniqueRunners"`
	OldestObject  *time.Time `json:"oldestObject,omitempty"`
	NewestObject  *time.Time `json:"newestObject,omitempty"`
}

// Writer archives raw checkpoint events to a prefix-addressable object
// store. Every failure on the write path is absorbed: losing the backup must
// never lose a runner's official time.
type Writer struct {
	store objstore.Client
	now   func() time.Time
}

func New(store objstore.Client) *Writer {
	return &Writer{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Archive writes the event under
// sensor_data/{raceKey}/{yyyyMMdd_HHmmss_fff}_{runnerKey}.json and reports
// whether the copy landed. It never returns an error: a missing or failing
// backend logs a warning and yields false.
func (w *Writer) Archive(ctx context.Context, raceKey, runnerKey string, eventTime time.Time, checkpointNumber *int32) bool {
	if w.store == nil {
		slog.Debug("backup store disabled, sensor data not archived", "race", raceKey, "runner", runnerKey)
		return true
	}

	recordedAt := w.now()
	payload := ArchivedEvent{
		RaceID:           raceKey,
		RunnerID:         runnerKey,
		Time:             eventTime.UTC(),
		RecordedAt:       recordedAt,
		CheckpointNumber: checkpointNumber,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("archive marshal failed (non-critical)", "race", raceKey, "runner", runnerKey, "error", err.Error())
		return false
	}

	key := objectKey(raceKey, runnerKey, recordedAt)
	if err := w.store.Put(ctx, key, "application/json", b); err != nil {
		slog.Warn("archive write failed (non-critical)", "key", key, "error", err.Error())
		return false
	}
	return true
}

func objectKey(raceKey, runnerKey string, at time.Time) string {
	ts := fmt.Sprintf("%s_%03d", at.Format("20060102_150405"), at.Nanosecond()/1e6)
	return fmt.Sprintf("%s/%s/%s_%s.json", keyPrefix, raceKey, ts, runnerKey)
}

func racePrefix(raceKey string) string {
	return keyPrefix + "/" + raceKey + "/"
}

// List returns the raw archived payloads for a race. Read-side reporting
// only, never called on the ingest path.
func (w *Writer) List(ctx context.Context, raceKey string) ([]json.RawMessage, error) {
	if w.store == nil {
		return []json.RawMessage{}, nil
	}

	infos, err := w.store.List(ctx, racePrefix(raceKey))
	if err != nil {
		return nil, errors.Wrap(err, "list backup objects")
	}

	out := make([]json.RawMessage, 0, len(infos))
	for _, info := range infos {
		b, err := w.store.Get(ctx, info.Key)
		if err != nil {
			return nil, errors.Wrapf(err, "get backup object %s", info.Key)
		}
		out = append(out, json.RawMessage(b))
	}
	return out, nil
}

func (w *Writer) Stats(ctx context.Context, raceKey string) (Stats, error) {
	st := Stats{RaceID: raceKey}
	if w.store == nil {
		return st, nil
	}

	infos, err := w.store.List(ctx, racePrefix(raceKey))
	if err != nil {
		return st, errors.Wrap(err, "list backup objects")
	}

	runners := map[string]struct{}{}
	for _, info := range infos {
		st.TotalObjects++
		st.TotalBytes += info.Size

		if r := runnerFromKey(info.Key); r != "" {
			runners[r] = struct{}{}
		}

		updated := info.Updated
		if st.OldestObject == nil || updated.Before(*st.OldestObject) {
			u := updated
			st.OldestObject = &u
		}
		if st.NewestObject == nil || updated.After(*st.NewestObject) {
			u := updated
			st.NewestObject = &u
		}
	}
	st.UniqueRunners = len(runners)
	st.TotalMB = float64(st.TotalBytes) / (1024.0 * 1024.0)
	return st, nil
}

// runnerFromKey recovers the runner document from the object name suffix
// ({timestamp}_{runnerKey}.json). Runner documents contain no underscores.
func runnerFromKey(key string) string {
	base := strings.TrimSuffix(path.Base(key), ".json")
	parts := strings.Split(base, "_")
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// Purge deletes objects older than retentionDays and returns how many were
// removed. Maintenance only.
func (w *Writer) Purge(ctx context.Context, raceKey string, retentionDays int) (int, error) {
	if w.store == nil {
		return 0, nil
	}

	infos, err := w.store.List(ctx, racePrefix(raceKey))
	if err != nil {
		return 0, errors.Wrap(err, "list backup objects")
	}

	cutoff := w.now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for _, info := range infos {
		if info.Updated.Before(cutoff) {
			if err := w.store.Delete(ctx, info.Key); err != nil {
				return deleted, errors.Wrapf(err, "delete backup object %s", info.Key)
			}
			deleted++
		}
	}
	slog.Info("backup purge completed", "race", raceKey, "deleted", deleted, "retention_days", retentionDays)
	return deleted, nil
}
