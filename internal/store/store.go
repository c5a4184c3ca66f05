package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Logger is the minimal logging interface the store needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Hook is invoked when the set of configured devices changes.
//
// For removal hooks, cfg is nil when the whole store was cleared.
type Hook func(cfg *DeviceConfig)

// Store owns the set of configured devices. Adding, updating, and removing
// configs goes through the store, which persists the change and then
// notifies registered hooks. Callers wire connection supervision to the
// hooks so a device starts connecting as soon as it is configured and is
// torn down as soon as it is removed.
//
// Thread Safety: all methods are safe for concurrent use.
type Store struct {
	repo   Repository
	logger Logger

	mu       sync.Mutex
	onAdd    []Hook
	onRemove []Hook
}

// NewStore creates a store over the given repository.
// A nil logger disables logging.
func NewStore(repo Repository, logger Logger) *Store {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Store{repo: repo, logger: logger}
}

// OnAdd registers a hook invoked whenever a config is added or updated.
// Hooks registered after Load are not replayed for existing configs.
func (s *Store) OnAdd(fn Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAdd = append(s.onAdd, fn)
}

// OnRemove registers a hook invoked whenever a config is removed.
func (s *Store) OnRemove(fn Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRemove = append(s.onRemove, fn)
}

// Load reads all persisted configs and fires the add hooks for each,
// bringing supervision in line with the stored configuration at startup.
func (s *Store) Load(ctx context.Context) error {
	configs, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load device configs: %w", err)
	}

	for _, cfg := range configs {
		s.fireAdd(cfg)
	}

	s.logger.Info("device configs loaded", "count", len(configs))
	return nil
}

// AddOrUpdate validates and persists the config, then fires the add hooks.
func (s *Store) AddOrUpdate(ctx context.Context, cfg *DeviceConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := s.repo.Upsert(ctx, cfg); err != nil {
		return err
	}

	s.logger.Info("device config saved", "device", cfg.ID, "kind", cfg.Kind)
	s.fireAdd(cfg)
	return nil
}

// Remove deletes the config and fires the remove hooks with it.
func (s *Store) Remove(ctx context.Context, id string) error {
	cfg, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("device config removed", "device", id)
	s.fireRemove(cfg)
	return nil
}

// Clear deletes every config and fires the remove hooks once with nil,
// signalling that everything is gone.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.repo.DeleteAll(ctx); err != nil {
		return err
	}

	s.logger.Info("device configs cleared")
	s.fireRemove(nil)
	return nil
}

// Get retrieves a config by ID. Returns ErrNotFound if it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*DeviceConfig, error) {
	return s.repo.Get(ctx, id)
}

// Contains reports whether a config with the given ID exists.
func (s *Store) Contains(ctx context.Context, id string) bool {
	_, err := s.repo.Get(ctx, id)
	return err == nil
}

// All retrieves every config ordered by ID.
func (s *Store) All(ctx context.Context) ([]*DeviceConfig, error) {
	return s.repo.List(ctx)
}

// MarkSeen records that the device connected or delivered data,
// clearing any stored error.
func (s *Store) MarkSeen(ctx context.Context, id string, at time.Time) error {
	return s.repo.UpdateLastSeen(ctx, id, at)
}

// MarkError records the most recent connection error for the device.
func (s *Store) MarkError(ctx context.Context, id string, msg string) error {
	return s.repo.UpdateLastError(ctx, id, msg)
}

// BackupJSON serializes every config to a JSON array suitable for
// RestoreBackupJSON.
func (s *Store) BackupJSON(ctx context.Context) ([]byte, error) {
	configs, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if configs == nil {
		configs = []*DeviceConfig{}
	}

	data, err := json.MarshalIndent(configs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal backup: %w", err)
	}
	return data, nil
}

// RestoreBackupJSON restores configs from a JSON backup. Invalid entries
// are skipped with a warning so one corrupt record does not block the
// rest. If the backup contains entries but none is restorable, the
// restore fails with ErrInvalidBackup and nothing is changed.
func (s *Store) RestoreBackupJSON(ctx context.Context, data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}

	var valid []*DeviceConfig
	for i, entry := range raw {
		var cfg DeviceConfig
		if err := json.Unmarshal(entry, &cfg); err != nil {
			s.logger.Warn("skipping unreadable backup entry", "index", i, "error", err)
			continue
		}
		if err := cfg.Validate(); err != nil {
			s.logger.Warn("skipping invalid backup entry", "index", i, "error", err)
			continue
		}
		valid = append(valid, &cfg)
	}

	if len(raw) > 0 && len(valid) == 0 {
		return ErrInvalidBackup
	}

	for _, cfg := range valid {
		if err := s.AddOrUpdate(ctx, cfg); err != nil {
			return fmt.Errorf("failed to restore device %q: %w", cfg.ID, err)
		}
	}

	s.logger.Info("backup restored", "restored", len(valid), "skipped", len(raw)-len(valid))
	return nil
}

func (s *Store) fireAdd(cfg *DeviceConfig) {
	s.mu.Lock()
	hooks := make([]Hook, len(s.onAdd))
	copy(hooks, s.onAdd)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(cfg.Clone())
	}
}

func (s *Store) fireRemove(cfg *DeviceConfig) {
	s.mu.Lock()
	hooks := make([]Hook, len(s.onRemove))
	copy(hooks, s.onRemove)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(cfg.Clone())
	}
}
