package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/devicelink/internal/connection"
	"github.com/nerrad567/devicelink/internal/entity"
	"github.com/nerrad567/devicelink/internal/store"
)

// deviceResponse is the JSON shape for a configured device with its
// live connection status merged in.
type deviceResponse struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Kind         string         `json:"kind"`
	Address      string         `json:"address"`
	PollInterval int            `json:"poll_interval_seconds,omitempty"`
	Settings     map[string]any `json:"settings,omitempty"`
	State        string         `json:"state"`
	Attempt      int            `json:"attempt,omitempty"`
	LastError    string         `json:"last_error,omitempty"`
	NextRetry    *time.Time     `json:"next_retry,omitempty"`
	Connects     uint64         `json:"connects"`
	Errors       uint64         `json:"errors"`
	LastSeen     *time.Time     `json:"last_seen,omitempty"`
	Entities     int            `json:"entities"`
}

// buildDeviceResponse merges a stored config with live supervision state.
func (s *Server) buildDeviceResponse(cfg *store.DeviceConfig) deviceResponse {
	resp := deviceResponse{
		ID:           cfg.ID,
		Name:         cfg.Name,
		Kind:         cfg.Kind,
		Address:      cfg.Address,
		PollInterval: cfg.PollInterval,
		Settings:     cfg.Settings,
		State:        "unregistered",
		LastSeen:     cfg.LastSeen,
		Entities:     len(s.registry.DeviceEntities(cfg.ID)),
	}
	if cfg.LastError != nil {
		resp.LastError = *cfg.LastError
	}

	dev, err := s.manager.Device(cfg.ID)
	if err != nil {
		return resp
	}

	resp.State = dev.State().String()
	resp.Attempt = dev.Attempt()
	if lastErr := dev.LastError(); lastErr != nil {
		resp.LastError = lastErr.Error()
	}

	stats := dev.Stats()
	resp.Connects = stats.Connects
	resp.Errors = stats.Errors
	if !stats.NextRetry.IsZero() {
		t := stats.NextRetry
		resp.NextRetry = &t
	}

	return resp
}

// handleListDevices returns all configured devices with live status.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	configs, err := s.store.All(r.Context())
	if err != nil {
		s.logger.Error("failed to list device configs", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}

	devices := make([]deviceResponse, 0, len(configs))
	for _, cfg := range configs {
		devices = append(devices, s.buildDeviceResponse(cfg))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns a single configured device with live status.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cfg, err := s.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeNotFound(w, "device not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get device config", "device", id, "error", err)
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, s.buildDeviceResponse(cfg))
}

// handleCreateDevice adds or updates a device configuration. The store's
// change hooks take care of (re)starting connection supervision.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var cfg store.DeviceConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.store.AddOrUpdate(r.Context(), &cfg); err != nil {
		if errors.Is(err, store.ErrInvalidConfig) {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		s.logger.Error("failed to save device config", "device", cfg.ID, "error", err)
		writeInternalError(w, "failed to save device")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"id": cfg.ID})
}

// handleDeleteDevice removes a device configuration and tears down its
// connection via the store's remove hook.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := s.store.Remove(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeNotFound(w, "device not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to remove device config", "device", id, "error", err)
		writeInternalError(w, "failed to remove device")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "removed": true})
}

// handleRefreshDevice re-reads all entity attributes for a device and
// pushes changes to the integration.
func (s *Server) handleRefreshDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !s.store.Contains(r.Context(), id) {
		writeNotFound(w, "device not found")
		return
	}

	if err := s.syncer.RefreshAll(r.Context(), id); err != nil {
		writeError(w, http.StatusBadGateway, "refresh_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "refreshed": true})
}

// handleResetDevice restarts supervision for a device that exhausted its
// retry budget.
func (s *Server) handleResetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.manager.Device(id)
	if errors.Is(err, connection.ErrDeviceNotFound) {
		writeNotFound(w, "device not registered")
		return
	}
	if err != nil {
		writeInternalError(w, "failed to look up device")
		return
	}

	if err := dev.Reset(); err != nil {
		if errors.Is(err, connection.ErrNotFailed) {
			writeError(w, http.StatusConflict, ErrCodeConflict, "device is not in the failed state")
			return
		}
		writeInternalError(w, "failed to reset device")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "reset": true})
}

// entityResponse is the JSON shape for one entity and its last pushed state.
type entityResponse struct {
	Entity     string            `json:"entity"`
	Attributes entity.Attributes `json:"attributes,omitempty"`
}

// handleListEntities returns the entities registered for a device along
// with the attributes last pushed for each.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !s.store.Contains(r.Context(), id) {
		writeNotFound(w, "device not found")
		return
	}

	ids := s.registry.DeviceEntities(id)
	entities := make([]entityResponse, 0, len(ids))
	for _, eid := range ids {
		entities = append(entities, entityResponse{
			Entity:     eid.Local,
			Attributes: s.syncer.LastPushed(eid),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device":   id,
		"entities": entities,
		"count":    len(entities),
	})
}

// handleBackup streams all device configurations as a JSON array.
func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	data, err := s.store.BackupJSON(r.Context())
	if err != nil {
		s.logger.Error("failed to build backup", "error", err)
		writeInternalError(w, "failed to build backup")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="devices.json"`)
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(data)
}

// handleRestore replaces device configurations from a JSON backup.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read request body")
		return
	}

	if err := s.store.RestoreBackupJSON(r.Context(), data); err != nil {
		if errors.Is(err, store.ErrInvalidBackup) {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		s.logger.Error("failed to restore backup", "error", err)
		writeInternalError(w, "failed to restore backup")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"restored": true})
}

// handleStats returns aggregate synchronization and supervision counters.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	syncStats := s.syncer.Stats()

	var connects, connErrs uint64
	devices := s.manager.Devices()
	for _, dev := range devices {
		stats := dev.Stats()
		connects += stats.Connects
		connErrs += stats.Errors
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices":  len(devices),
		"entities": len(s.registry.All()),
		"sync": map[string]uint64{
			"pushes":  syncStats.Pushes,
			"skipped": syncStats.Skipped,
			"errors":  syncStats.Errors,
		},
		"connections": map[string]uint64{
			"connects": connects,
			"errors":   connErrs,
		},
	})
}
