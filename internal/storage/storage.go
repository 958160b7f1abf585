package storage

import (
	"context"
	"errors"
	"time"

	"github.com/savegress/dosetrack/pkg/models"
)

var ErrNotFound = errors.New("not found")

// Storage is the interface for dose, blood test, and schedule persistence
type Storage interface {
	// SaveDose stores a dose record, assigning an ID if absent
	SaveDose(ctx context.Context, dose *models.DoseRecord) error

	// ListDoses returns dose records ordered by timestamp ascending.
	// Zero from/until mean unbounded; empty modelKey matches all models.
	ListDoses(ctx context.Context, from, until time.Time, modelKey string) ([]models.DoseRecord, error)

	// DeleteDose removes a dose record by ID
	DeleteDose(ctx context.Context, id string) error

	// AutomaticTimestamps returns the Unix timestamps of automatic doses
	// already stored for a schedule
	AutomaticTimestamps(ctx context.Context, scheduleID string) (map[int64]bool, error)

	// PruneDoses deletes automatic dose records for a model older than the
	// cutoff and returns the number removed. Manual records are kept.
	PruneDoses(ctx context.Context, modelKey string, before time.Time) (int64, error)

	// SaveTest stores a blood test result, assigning an ID if absent
	SaveTest(ctx context.Context, test *models.BloodTest) error

	// ListTests returns blood tests ordered by timestamp ascending
	ListTests(ctx context.Context) ([]models.BloodTest, error)

	// DeleteTest removes a blood test by ID
	DeleteTest(ctx context.Context, id string) error

	// SaveSchedule inserts or updates a schedule
	SaveSchedule(ctx context.Context, schedule *models.Schedule) error

	// ListSchedules returns all schedules ordered by creation time
	ListSchedules(ctx context.Context) ([]models.Schedule, error)

	// DeleteSchedule removes a schedule by ID
	DeleteSchedule(ctx context.Context, id string) error

	// Close closes the storage
	Close() error
}
