package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Repository defines persistence operations for device configs.
type Repository interface {
	// Get retrieves a device config by ID.
	//
	// Returns:
	//   - *DeviceConfig: the config, or nil if not found
	//   - error: ErrNotFound if no config exists with the given ID
	Get(ctx context.Context, id string) (*DeviceConfig, error)

	// List retrieves all device configs ordered by ID.
	List(ctx context.Context) ([]*DeviceConfig, error)

	// Upsert inserts a new config or replaces an existing one with the
	// same ID. CreatedAt is preserved on replace; UpdatedAt is set to now.
	Upsert(ctx context.Context, cfg *DeviceConfig) error

	// Delete removes a device config by ID.
	//
	// Returns:
	//   - error: ErrNotFound if no config exists with the given ID
	Delete(ctx context.Context, id string) error

	// DeleteAll removes every device config.
	DeleteAll(ctx context.Context) error

	// UpdateLastSeen records when the device last connected or
	// delivered data, and clears any stored error.
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error

	// UpdateLastError records the most recent connection error.
	UpdateLastError(ctx context.Context, id string, msg string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository backed by the given database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// rowScanner abstracts sql.Row and sql.Rows for shared scanning logic.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*DeviceConfig, error) {
	query := `
		SELECT id, name, kind, address, poll_interval_seconds, settings,
		       last_seen, last_error, created_at, updated_at
		FROM device_configs
		WHERE id = ?
	`

	row := r.db.QueryRowContext(ctx, query, id)
	cfg, err := scanDeviceConfig(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device config: %w", err)
	}

	return cfg, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*DeviceConfig, error) {
	query := `
		SELECT id, name, kind, address, poll_interval_seconds, settings,
		       last_seen, last_error, created_at, updated_at
		FROM device_configs
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list device configs: %w", err)
	}
	defer rows.Close()

	var configs []*DeviceConfig
	for rows.Next() {
		cfg, err := scanDeviceConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device config: %w", err)
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate device configs: %w", err)
	}

	return configs, nil
}

func (r *SQLiteRepository) Upsert(ctx context.Context, cfg *DeviceConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	settings, err := json.Marshal(cfg.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if cfg.Settings == nil {
		settings = []byte("{}")
	}

	now := time.Now().UTC().Format(time.RFC3339)

	query := `
		INSERT INTO device_configs (
			id, name, kind, address, poll_interval_seconds, settings,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			address = excluded.address,
			poll_interval_seconds = excluded.poll_interval_seconds,
			settings = excluded.settings,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		cfg.ID, cfg.Name, cfg.Kind, cfg.Address, cfg.PollInterval,
		string(settings), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert device config: %w", err)
	}

	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM device_configs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete device config: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return nil
}

func (r *SQLiteRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM device_configs"); err != nil {
		return fmt.Errorf("failed to delete device configs: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE device_configs
		SET last_seen = ?, last_error = NULL, updated_at = ?
		WHERE id = ?
	`

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, query, at.UTC().Format(time.RFC3339), now, id)
	if err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return nil
}

func (r *SQLiteRepository) UpdateLastError(ctx context.Context, id string, msg string) error {
	query := `
		UPDATE device_configs
		SET last_error = ?, updated_at = ?
		WHERE id = ?
	`

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, query, msg, now, id)
	if err != nil {
		return fmt.Errorf("failed to update last error: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return nil
}

// scanDeviceConfig scans a device config row. The column order must match
// the SELECT statements above.
func scanDeviceConfig(row rowScanner) (*DeviceConfig, error) {
	var (
		cfg          DeviceConfig
		settingsJSON string
		lastSeen     sql.NullString
		lastError    sql.NullString
		createdAt    string
		updatedAt    string
	)

	err := row.Scan(
		&cfg.ID, &cfg.Name, &cfg.Kind, &cfg.Address, &cfg.PollInterval,
		&settingsJSON, &lastSeen, &lastError, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if settingsJSON != "" && settingsJSON != "{}" {
		if err := json.Unmarshal([]byte(settingsJSON), &cfg.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
	}

	if lastSeen.Valid {
		t, err := time.Parse(time.RFC3339, lastSeen.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last_seen: %w", err)
		}
		cfg.LastSeen = &t
	}
	if lastError.Valid {
		s := lastError.String
		cfg.LastError = &s
	}

	if cfg.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if cfg.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &cfg, nil
}
