package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AndeanRace/ChronoGate/internal/integrations/objstore"
	"github.com/pkg/errors"
)

// MemStore is an in-memory objstore.Client for tests and local runs without
// a bucket.
type MemStore struct {
	mu      sync.Mutex
	objects map[string]object

	// FailPuts makes every Put fail; used to exercise the soft-failure
	// path of the archive writer.
	FailPuts bool
}

type object struct {
	body    []byte
	updated time.Time
}

func New() *MemStore {
	return &MemStore{objects: map[string]object{}}
}

func (m *MemStore) Put(ctx context.Context, key, contentType string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPuts {
		return errors.New("memstore: puts disabled")
	}
	b := make([]byte, len(body))
	copy(b, body)
	m.objects[key] = object{body: b, updated: time.Now().UTC()}
	return nil
}

func (m *MemStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, errors.Errorf("memstore: no such key %q", key)
	}
	return obj.body, nil
}

func (m *MemStore) List(ctx context.Context, prefix string) ([]objstore.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []objstore.ObjectInfo
	for k, obj := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, objstore.ObjectInfo{
				Key:     k,
				Size:    int64(len(obj.body)),
				Updated: obj.updated,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// SetUpdated rewinds an object's timestamp; tests use it to age objects for
// purge scenarios.
func (m *MemStore) SetUpdated(key string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if obj, ok := m.objects[key]; ok {
		obj.updated = at
		m.objects[key] = obj
	}
}

func (m *MemStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
