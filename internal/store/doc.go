// Package store persists device configurations.
//
// This package manages:
//   - CRUD operations for device configs via a Repository interface
//   - SQLite-backed persistence with JSON settings blobs
//   - Change notification hooks for the wiring layer
//   - JSON backup and restore of the full device set
//
// The Store is the single owner of configured devices: registering a device
// with the connection manager and tearing it down again both happen in
// reaction to Store changes, via the OnAdd and OnRemove hooks.
package store
