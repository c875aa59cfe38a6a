package valve

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// historyTimeLayout is fixed width so started_at sorts as text.
	historyTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Actuation sources recorded in history.
const (
	SourceManual   = "manual"
	SourceSchedule = "schedule"
)

// ActuationRecord is one completed actuation attempt.
type ActuationRecord struct {
	ID        string        `json:"id"`
	Operation Operation     `json:"operation"`
	Source    string        `json:"source"`
	Code      Code          `json:"code"`
	Duration  time.Duration `json:"duration_ns"`
	StartedAt time.Time     `json:"started_at"`
}

// ConfigRepository persists the control configuration across restarts.
type ConfigRepository interface {
	// LoadConfig returns ErrConfigNotFound when nothing has been saved yet.
	LoadConfig(ctx context.Context) (ControlConfig, error)
	SaveConfig(ctx context.Context, cfg ControlConfig) error
}

// HistoryRepository stores actuation outcomes.
//
// Implementations must be thread-safe and use UTC timestamps.
type HistoryRepository interface {
	RecordActuation(ctx context.Context, rec ActuationRecord) error

	// ListActuations returns the newest records first. limit is clamped to
	// 1..200 with 50 as the default.
	ListActuations(ctx context.Context, limit int) ([]ActuationRecord, error)

	// PruneActuations deletes records that started before now-olderThan.
	PruneActuations(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteRepository implements ConfigRepository and HistoryRepository.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository returns a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// LoadConfig reads the single control_config row and its schedule entries.
func (r *SQLiteRepository) LoadConfig(ctx context.Context) (ControlConfig, error) {
	var cfg ControlConfig
	err := r.db.QueryRowContext(ctx,
		`SELECT schedule_mode, sensor_mode, apply_schedule, sensor_upper, sensor_lower
		 FROM control_config WHERE id = 1`,
	).Scan(&cfg.ScheduleMode, &cfg.SensorMode, &cfg.ApplySchedule, &cfg.SensorUpper, &cfg.SensorLower)
	if errors.Is(err, sql.ErrNoRows) {
		return ControlConfig{}, ErrConfigNotFound
	}
	if err != nil {
		return ControlConfig{}, fmt.Errorf("querying control config: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT day, open_at, close_at FROM schedule_entries ORDER BY position LIMIT ?",
		MaxScheduleEntries,
	)
	if err != nil {
		return ControlConfig{}, fmt.Errorf("querying schedule entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e ScheduleEntry
		if err := rows.Scan(&e.Day, &e.Open, &e.Close); err != nil {
			return ControlConfig{}, fmt.Errorf("scanning schedule entry: %w", err)
		}
		cfg.Schedule = append(cfg.Schedule, e)
	}
	if err := rows.Err(); err != nil {
		return ControlConfig{}, fmt.Errorf("iterating schedule entries: %w", err)
	}

	return cfg, nil
}

// SaveConfig replaces the stored configuration and schedule atomically.
func (r *SQLiteRepository) SaveConfig(ctx context.Context, cfg ControlConfig) error {
	cfg = cfg.Clone()
	cfg.TrimSchedule()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO control_config (id, schedule_mode, sensor_mode, apply_schedule, sensor_upper, sensor_lower, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   schedule_mode = excluded.schedule_mode,
		   sensor_mode = excluded.sensor_mode,
		   apply_schedule = excluded.apply_schedule,
		   sensor_upper = excluded.sensor_upper,
		   sensor_lower = excluded.sensor_lower,
		   updated_at = excluded.updated_at`,
		cfg.ScheduleMode, cfg.SensorMode, cfg.ApplySchedule, cfg.SensorUpper, cfg.SensorLower,
		time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("upserting control config: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM schedule_entries"); err != nil {
		return fmt.Errorf("clearing schedule entries: %w", err)
	}
	for i, e := range cfg.Schedule {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schedule_entries (position, day, open_at, close_at) VALUES (?, ?, ?, ?)",
			i, e.Day, e.Open, e.Close,
		); err != nil {
			return fmt.Errorf("inserting schedule entry %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing control config: %w", err)
	}
	return nil
}

// RecordActuation inserts rec, assigning an ID when it has none.
func (r *SQLiteRepository) RecordActuation(ctx context.Context, rec ActuationRecord) error {
	if rec.Operation == "" {
		return fmt.Errorf("operation is required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Source == "" {
		rec.Source = SourceManual
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO actuation_history (id, operation, source, code, duration_ms, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID,
		string(rec.Operation),
		rec.Source,
		int(rec.Code),
		rec.Duration.Milliseconds(),
		rec.StartedAt.UTC().Format(historyTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting actuation history: %w", err)
	}
	return nil
}

// ListActuations returns recent actuation records, newest first.
func (r *SQLiteRepository) ListActuations(ctx context.Context, limit int) ([]ActuationRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, operation, source, code, duration_ms, started_at
		 FROM actuation_history
		 ORDER BY started_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying actuation history: %w", err)
	}
	defer rows.Close()

	records := make([]ActuationRecord, 0, limit)
	for rows.Next() {
		var (
			rec        ActuationRecord
			op         string
			code       int
			durationMS int64
			startedAt  string
		)
		if err := rows.Scan(&rec.ID, &op, &rec.Source, &code, &durationMS, &startedAt); err != nil {
			return nil, fmt.Errorf("scanning actuation history: %w", err)
		}
		rec.Operation = Operation(op)
		rec.Code = Code(code)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.StartedAt, err = time.Parse(historyTimeLayout, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating actuation history: %w", err)
	}

	return records, nil
}

// PruneActuations deletes history older than olderThan.
func (r *SQLiteRepository) PruneActuations(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(historyTimeLayout)
	result, err := r.db.ExecContext(ctx, "DELETE FROM actuation_history WHERE started_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting actuation history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
