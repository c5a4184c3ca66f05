// Package entity maps device state onto integration entities and keeps the
// integration host up to date.
//
// Devices expose one or more entities (a light, a media player zone, a
// sensor). Each entity registers a Provider that reads current attributes
// from the device and a Handle that pushes attribute changes to the host.
// The Syncer sits between them: on every refresh it reads attributes,
// diffs them against what was last pushed, and pushes only the changes.
// An unchanged entity produces no push at all.
//
// The reserved "available" attribute tracks the device's connection
// lifecycle and flows through the same diff path, so availability flaps
// never produce duplicate pushes either.
package entity
