package api

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/savegress/dosetrack/internal/storage"
	"github.com/savegress/dosetrack/pkg/models"
)

// memStorage is an in-memory Storage used by the handler tests. It mirrors
// the SQLite implementation's ID assignment and ordering guarantees.
type memStorage struct {
	mu        sync.Mutex
	doses     map[string]models.DoseRecord
	tests     map[string]models.BloodTest
	schedules map[string]models.Schedule
}

func newMemStorage() *memStorage {
	return &memStorage{
		doses:     make(map[string]models.DoseRecord),
		tests:     make(map[string]models.BloodTest),
		schedules: make(map[string]models.Schedule),
	}
}

func (m *memStorage) SaveDose(ctx context.Context, dose *models.DoseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if dose.ID == "" {
		dose.ID = uuid.New().String()
	}
	if dose.Source == "" {
		dose.Source = models.DoseSourceManual
	}
	if dose.CreatedAt.IsZero() {
		dose.CreatedAt = time.Now().UTC()
	}
	m.doses[dose.ID] = *dose
	return nil
}

func (m *memStorage) ListDoses(ctx context.Context, from, until time.Time, modelKey string) ([]models.DoseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.DoseRecord
	for _, d := range m.doses {
		if !from.IsZero() && d.Timestamp.Before(from) {
			continue
		}
		if !until.IsZero() && d.Timestamp.After(until) {
			continue
		}
		if modelKey != "" && d.ModelKey != modelKey {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (m *memStorage) DeleteDose(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.doses[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.doses, id)
	return nil
}

func (m *memStorage) AutomaticTimestamps(ctx context.Context, scheduleID string) (map[int64]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[int64]bool)
	for _, d := range m.doses {
		if d.ScheduleID == scheduleID && d.Source == models.DoseSourceAutomatic {
			out[d.Timestamp.Unix()] = true
		}
	}
	return out, nil
}

func (m *memStorage) PruneDoses(ctx context.Context, modelKey string, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for id, d := range m.doses {
		if d.Source == models.DoseSourceAutomatic && d.ModelKey == modelKey && d.Timestamp.Before(before) {
			delete(m.doses, id)
			removed++
		}
	}
	return removed, nil
}

func (m *memStorage) SaveTest(ctx context.Context, test *models.BloodTest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if test.ID == "" {
		test.ID = uuid.New().String()
	}
	if test.CreatedAt.IsZero() {
		test.CreatedAt = time.Now().UTC()
	}
	m.tests[test.ID] = *test
	return nil
}

func (m *memStorage) ListTests(ctx context.Context) ([]models.BloodTest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.BloodTest
	for _, t := range m.tests {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (m *memStorage) DeleteTest(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tests[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.tests, id)
	return nil
}

func (m *memStorage) SaveSchedule(ctx context.Context, schedule *models.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if schedule.ID == "" {
		schedule.ID = uuid.New().String()
	}
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now
	m.schedules[schedule.ID] = *schedule
	return nil
}

func (m *memStorage) ListSchedules(ctx context.Context) ([]models.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Schedule
	for _, s := range m.schedules {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *memStorage) DeleteSchedule(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.schedules[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.schedules, id)
	return nil
}

func (m *memStorage) Close() error {
	return nil
}
