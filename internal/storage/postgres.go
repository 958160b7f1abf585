package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/savegress/dosetrack/pkg/models"
)

// PostgresStorage is the Postgres storage backend
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage connects to Postgres and creates the schema if needed
func NewPostgresStorage(databaseURL string, maxConns, minConns int32) (*PostgresStorage, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}
	if minConns > 0 {
		poolConfig.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStorage{pool: pool}

	if err := s.initSchema(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *PostgresStorage) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS doses (
		id TEXT PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		model_key TEXT NOT NULL,
		amount_mg DOUBLE PRECISION NOT NULL,
		source TEXT NOT NULL DEFAULT 'manual',
		schedule_id TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_doses_ts ON doses(timestamp);
	CREATE INDEX IF NOT EXISTS idx_doses_model_ts ON doses(model_key, timestamp);
	CREATE INDEX IF NOT EXISTS idx_doses_schedule ON doses(schedule_id);

	CREATE TABLE IF NOT EXISTS blood_tests (
		id TEXT PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		level_pg_ml DOUBLE PRECISION NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tests_ts ON blood_tests(timestamp);

	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		model_key TEXT NOT NULL,
		dose_mg DOUBLE PRECISION NOT NULL,
		interval_days DOUBLE PRECISION NOT NULL,
		phase_days DOUBLE PRECISION NOT NULL DEFAULT 0,
		dose_time TEXT NOT NULL DEFAULT '08:00',
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// SaveDose stores a dose record, assigning an ID if absent
func (s *PostgresStorage) SaveDose(ctx context.Context, dose *models.DoseRecord) error {
	if dose.ID == "" {
		dose.ID = uuid.New().String()
	}
	if dose.Source == "" {
		dose.Source = models.DoseSourceManual
	}
	if dose.CreatedAt.IsZero() {
		dose.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO doses (id, timestamp, model_key, amount_mg, source, schedule_id, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.pool.Exec(ctx, query,
		dose.ID, dose.Timestamp.UTC(), dose.ModelKey, dose.AmountMg,
		string(dose.Source), dose.ScheduleID, dose.Notes, dose.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save dose: %w", err)
	}
	return nil
}

// ListDoses returns dose records ordered by timestamp ascending
func (s *PostgresStorage) ListDoses(ctx context.Context, from, until time.Time, modelKey string) ([]models.DoseRecord, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if !from.IsZero() {
		conditions = append(conditions, fmt.Sprintf("timestamp >= $%d", argNum))
		args = append(args, from.UTC())
		argNum++
	}
	if !until.IsZero() {
		conditions = append(conditions, fmt.Sprintf("timestamp <= $%d", argNum))
		args = append(args, until.UTC())
		argNum++
	}
	if modelKey != "" {
		conditions = append(conditions, fmt.Sprintf("model_key = $%d", argNum))
		args = append(args, modelKey)
	}

	query := "SELECT id, timestamp, model_key, amount_mg, source, schedule_id, notes, created_at FROM doses"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list doses: %w", err)
	}
	defer rows.Close()

	var doses []models.DoseRecord
	for rows.Next() {
		var d models.DoseRecord
		var source string
		if err := rows.Scan(&d.ID, &d.Timestamp, &d.ModelKey, &d.AmountMg, &source, &d.ScheduleID, &d.Notes, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.Timestamp = d.Timestamp.UTC()
		d.Source = models.DoseSource(source)
		d.CreatedAt = d.CreatedAt.UTC()
		doses = append(doses, d)
	}

	return doses, rows.Err()
}

// DeleteDose removes a dose record by ID
func (s *PostgresStorage) DeleteDose(ctx context.Context, id string) error {
	res, err := s.pool.Exec(ctx, "DELETE FROM doses WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete dose: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AutomaticTimestamps returns the Unix timestamps of automatic doses stored for a schedule
func (s *PostgresStorage) AutomaticTimestamps(ctx context.Context, scheduleID string) (map[int64]bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT timestamp FROM doses WHERE schedule_id = $1 AND source = $2
	`, scheduleID, string(models.DoseSourceAutomatic))
	if err != nil {
		return nil, fmt.Errorf("failed to query automatic timestamps: %w", err)
	}
	defer rows.Close()

	stored := make(map[int64]bool)
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		stored[ts.Unix()] = true
	}

	return stored, rows.Err()
}

// PruneDoses deletes automatic dose records for a model older than the cutoff
func (s *PostgresStorage) PruneDoses(ctx context.Context, modelKey string, before time.Time) (int64, error) {
	res, err := s.pool.Exec(ctx, `
		DELETE FROM doses WHERE model_key = $1 AND source = $2 AND timestamp < $3
	`, modelKey, string(models.DoseSourceAutomatic), before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune doses: %w", err)
	}
	return res.RowsAffected(), nil
}

// SaveTest stores a blood test result, assigning an ID if absent
func (s *PostgresStorage) SaveTest(ctx context.Context, test *models.BloodTest) error {
	if test.ID == "" {
		test.ID = uuid.New().String()
	}
	if test.CreatedAt.IsZero() {
		test.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO blood_tests (id, timestamp, level_pg_ml, notes, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.pool.Exec(ctx, query, test.ID, test.Timestamp.UTC(), test.LevelPgML, test.Notes, test.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save test: %w", err)
	}
	return nil
}

// ListTests returns blood tests ordered by timestamp ascending
func (s *PostgresStorage) ListTests(ctx context.Context) ([]models.BloodTest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, timestamp, level_pg_ml, notes, created_at FROM blood_tests ORDER BY timestamp ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}
	defer rows.Close()

	var tests []models.BloodTest
	for rows.Next() {
		var bt models.BloodTest
		if err := rows.Scan(&bt.ID, &bt.Timestamp, &bt.LevelPgML, &bt.Notes, &bt.CreatedAt); err != nil {
			return nil, err
		}
		bt.Timestamp = bt.Timestamp.UTC()
		bt.CreatedAt = bt.CreatedAt.UTC()
		tests = append(tests, bt)
	}

	return tests, rows.Err()
}

// DeleteTest removes a blood test by ID
func (s *PostgresStorage) DeleteTest(ctx context.Context, id string) error {
	res, err := s.pool.Exec(ctx, "DELETE FROM blood_tests WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete test: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveSchedule inserts or updates a schedule
func (s *PostgresStorage) SaveSchedule(ctx context.Context, schedule *models.Schedule) error {
	now := time.Now().UTC()
	if schedule.ID == "" {
		schedule.ID = uuid.New().String()
	}
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now

	query := `
		INSERT INTO schedules (id, model_key, dose_mg, interval_days, phase_days, dose_time, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			model_key = EXCLUDED.model_key,
			dose_mg = EXCLUDED.dose_mg,
			interval_days = EXCLUDED.interval_days,
			phase_days = EXCLUDED.phase_days,
			dose_time = EXCLUDED.dose_time,
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.pool.Exec(ctx, query,
		schedule.ID, schedule.ModelKey, schedule.DoseMg, schedule.IntervalDays,
		schedule.PhaseDays, schedule.DoseTime, schedule.Enabled, schedule.CreatedAt, schedule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}
	return nil
}

// ListSchedules returns all schedules ordered by creation time
func (s *PostgresStorage) ListSchedules(ctx context.Context) ([]models.Schedule, error) {
	rows, err := s.pool.Query(ctx, `
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
		if err := rows.Scan(&sch.ID, &sch.ModelKey, &sch.DoseMg, &sch.IntervalDays, &sch.PhaseDays,
			&sch.DoseTime, &sch.Enabled, &sch.CreatedAt, &sch.UpdatedAt); err != nil {
			return nil, err
		}
		sch.CreatedAt = sch.CreatedAt.UTC()
		sch.UpdatedAt = sch.UpdatedAt.UTC()
		schedules = append(schedules, sch)
	}

	return schedules, rows.Err()
}

// DeleteSchedule removes a schedule by ID
func (s *PostgresStorage) DeleteSchedule(ctx context.Context, id string) error {
	res, err := s.pool.Exec(ctx, "DELETE FROM schedules WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the storage
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}
