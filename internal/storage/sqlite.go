package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/savegress/dosetrack/pkg/models"
)

// SQLiteStorage is the embedded SQLite storage backend
type SQLiteStorage struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStorage opens (or creates) a SQLite database at the given path
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStorage{db: db}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS doses (
		id TEXT PRIMARY KEY,
		timestamp INTEGER NOT NULL,
		model_key TEXT NOT NULL,
		amount_mg REAL NOT NULL,
		source TEXT NOT NULL DEFAULT 'manual',
		schedule_id TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_doses_ts ON doses(timestamp);
	CREATE INDEX IF NOT EXISTS idx_doses_model_ts ON doses(model_key, timestamp);
	CREATE INDEX IF NOT EXISTS idx_doses_schedule ON doses(schedule_id);

	CREATE TABLE IF NOT EXISTS blood_tests (
		id TEXT PRIMARY KEY,
		timestamp INTEGER NOT NULL,
		level_pg_ml REAL NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tests_ts ON blood_tests(timestamp);

	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		model_key TEXT NOT NULL,
		dose_mg REAL NOT NULL,
		interval_days REAL NOT NULL,
		phase_days REAL NOT NULL DEFAULT 0,
		dose_time TEXT NOT NULL DEFAULT '08:00',
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveDose stores a dose record, assigning an ID if absent
func (s *SQLiteStorage) SaveDose(ctx context.Context, dose *models.DoseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dose.ID == "" {
		dose.ID = uuid.New().String()
	}
	if dose.Source == "" {
		dose.Source = models.DoseSourceManual
	}
	if dose.CreatedAt.IsZero() {
		dose.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO doses (id, timestamp, model_key, amount_mg, source, schedule_id, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, dose.ID, dose.Timestamp.Unix(), dose.ModelKey, dose.AmountMg, string(dose.Source), dose.ScheduleID, dose.Notes, dose.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save dose: %w", err)
	}
	return nil
}

// ListDoses returns dose records ordered by timestamp ascending
func (s *SQLiteStorage) ListDoses(ctx context.Context, from, until time.Time, modelKey string) ([]models.DoseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var conditions []string
	var args []interface{}

	if !from.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, from.Unix())
	}
	if !until.IsZero() {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, until.Unix())
	}
	if modelKey != "" {
		conditions = append(conditions, "model_key = ?")
		args = append(args, modelKey)
	}

	query := "SELECT id, timestamp, model_key, amount_mg, source, schedule_id, notes, created_at FROM doses"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list doses: %w", err)
	}
	defer rows.Close()

	var doses []models.DoseRecord
	for rows.Next() {
		var d models.DoseRecord
		var ts, createdAt int64
		var source string
		if err := rows.Scan(&d.ID, &ts, &d.ModelKey, &d.AmountMg, &source, &d.ScheduleID, &d.Notes, &createdAt); err != nil {
			return nil, err
		}
		d.Timestamp = time.Unix(ts, 0).UTC()
		d.Source = models.DoseSource(source)
		d.CreatedAt = time.Unix(createdAt, 0).UTC()
		doses = append(doses, d)
	}

	return doses, rows.Err()
}

// DeleteDose removes a dose record by ID
func (s *SQLiteStorage) DeleteDose(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM doses WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete dose: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// AutomaticTimestamps returns the Unix timestamps of automatic doses stored for a schedule
func (s *SQLiteStorage) AutomaticTimestamps(ctx context.Context, scheduleID string) (map[int64]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp FROM doses WHERE schedule_id = ? AND source = ?
	`, scheduleID, string(models.DoseSourceAutomatic))
	if err != nil {
		return nil, fmt.Errorf("failed to query automatic timestamps: %w", err)
	}
	defer rows.Close()

	stored := make(map[int64]bool)
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		stored[ts] = true
	}

	return stored, rows.Err()
}

// PruneDoses deletes automatic dose records for a model older than the cutoff
func (s *SQLiteStorage) PruneDoses(ctx context.Context, modelKey string, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM doses WHERE model_key = ? AND source = ? AND timestamp < ?
	`, modelKey, string(models.DoseSourceAutomatic), before.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune doses: %w", err)
	}
	return res.RowsAffected()
}

// SaveTest stores a blood test result, assigning an ID if absent
func (s *SQLiteStorage) SaveTest(ctx context.Context, test *models.BloodTest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if test.ID == "" {
		test.ID = uuid.New().String()
	}
	if test.CreatedAt.IsZero() {
		test.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blood_tests (id, timestamp, level_pg_ml, notes, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, test.ID, test.Timestamp.Unix(), test.LevelPgML, test.Notes, test.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save test: %w", err)
	}
	return nil
}

// ListTests returns blood tests ordered by timestamp ascending
func (s *SQLiteStorage) ListTests(ctx context.Context) ([]models.BloodTest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, level_pg_ml, notes, created_at FROM blood_tests ORDER BY timestamp ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}
	defer rows.Close()

	var tests []models.BloodTest
	for rows.Next() {
		var bt models.BloodTest
		var ts, createdAt int64
		if err := rows.Scan(&bt.ID, &ts, &bt.LevelPgML, &bt.Notes, &createdAt); err != nil {
			return nil, err
		}
		bt.Timestamp = time.Unix(ts, 0).UTC()
		bt.CreatedAt = time.Unix(createdAt, 0).UTC()
		tests = append(tests, bt)
	}

	return tests, rows.Err()
}

// DeleteTest removes a blood test by ID
func (s *SQLiteStorage) DeleteTest(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM blood_tests WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete test: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveSchedule inserts or updates a schedule
func (s *SQLiteStorage) SaveSchedule(ctx context.Context, schedule *models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if schedule.ID == "" {
		schedule.ID = uuid.New().String()
	}
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now

	enabled := 0
	if schedule.Enabled {
		enabled = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedules (id, model_key, dose_mg, interval_days, phase_days, dose_time, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			model_key = excluded.model_key,
			dose_mg = excluded.dose_mg,
			interval_days = excluded.interval_days,
			phase_days = excluded.phase_days,
			dose_time = excluded.dose_time,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`, schedule.ID, schedule.ModelKey, schedule.DoseMg, schedule.IntervalDays, schedule.PhaseDays,
		schedule.DoseTime, enabled, schedule.CreatedAt.Unix(), schedule.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}
	return nil
}

// ListSchedules returns all schedules ordered by creation time
func (s *SQLiteStorage) ListSchedules(ctx context.Context) ([]models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, model_key, dose_mg, interval_days, phase_days, dose_time, enabled, created_at, updated_at
		FROM schedules ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []models.Schedule
	for rows.Next() {
		var sch models.Schedule
		var enabled int
		var createdAt, updatedAt int64
		if err := rows.Scan(&sch.ID, &sch.ModelKey, &sch.DoseMg, &sch.IntervalDays, &sch.PhaseDays,
			&sch.DoseTime, &enabled, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		sch.Enabled = enabled != 0
		sch.CreatedAt = time.Unix(createdAt, 0).UTC()
		sch.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		schedules = append(schedules, sch)
	}

	return schedules, rows.Err()
}

// DeleteSchedule removes a schedule by ID
func (s *SQLiteStorage) DeleteSchedule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM schedules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the storage
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
