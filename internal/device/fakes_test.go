package device

import (
	"context"
	"sync"
	"time"

	"healthtrack/backend/internal/repository"

	"github.com/google/uuid"
)

// fakeRecordStore merges upserts into an in-memory day-keyed map the way
// the real store's COALESCE upsert does
type fakeRecordStore struct {
	mu      sync.Mutex
	upserts int
	state   map[string]repository.HealthRecord
	failErr error
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{state: make(map[string]repository.HealthRecord)}
}

func (f *fakeRecordStore) UpsertDay(_ context.Context, date time.Time, patch repository.HealthRecordPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.upserts++

	key := date.Format("2006-01-02")
	rec := f.state[key]
	rec.Date = date
	if patch.Weight != nil {
		rec.Weight = patch.Weight
	}
	if patch.BloodPressure != nil {
		rec.BloodPressure = patch.BloodPressure
	}
	if patch.BloodSugar != nil {
		rec.BloodSugar = patch.BloodSugar
	}
	if patch.SleepHours != nil {
		rec.SleepHours = patch.SleepHours
	}
	if patch.ExerciseMinutes != nil {
		rec.ExerciseMinutes = patch.ExerciseMinutes
	}
	if patch.Notes != nil {
		rec.Notes = patch.Notes
	}
	f.state[key] = rec
	return nil
}

func (f *fakeRecordStore) get(key string) (repository.HealthRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.state[key]
	return rec, ok
}

func (f *fakeRecordStore) snapshot() map[string]repository.HealthRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]repository.HealthRecord, len(f.state))
	for k, v := range f.state {
		out[k] = v
	}
	return out
}

type fakeConnectionStore struct {
	mu        sync.Mutex
	completed []time.Time
}

func (f *fakeConnectionStore) MarkSyncCompleted(_ context.Context, _ uuid.UUID, completedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, completedAt)
	return nil
}

type fakeSyncLogStore struct {
	mu      sync.Mutex
	entries []repository.AppendSyncLogRequest
}

func (f *fakeSyncLogStore) Append(_ context.Context, req repository.AppendSyncLogRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, req)
	return nil
}

func newTestStores() (Stores, *fakeRecordStore, *fakeConnectionStore, *fakeSyncLogStore) {
	records := newFakeRecordStore()
	connections := &fakeConnectionStore{}
	syncLog := &fakeSyncLogStore{}
	return Stores{Records: records, Connections: connections, SyncLog: syncLog}, records, connections, syncLog
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
