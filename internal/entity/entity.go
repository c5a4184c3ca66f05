package entity

import (
	"reflect"
	"sort"
)

// AttrAvailable is the reserved attribute tracking device reachability.
// The Syncer maintains it from connection lifecycle events; providers
// should not set it themselves.
const AttrAvailable = "available"

// ID identifies an entity by the device that owns it and the device-local
// entity identifier. Both parts are kept separate so neither needs escaping.
type ID struct {
	Device string
	Local  string
}

// String renders the ID for logs and external surfaces.
func (id ID) String() string {
	return id.Device + ":" + id.Local
}

// Attributes is one entity's attribute set.
//
// A key present with a nil value is an explicit clear of that attribute.
// A key that is absent is simply not mentioned; Diff leaves it untouched.
type Attributes map[string]any

// Clone returns a shallow copy. Attribute values are treated as immutable
// once handed to the syncer.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Keys returns the attribute names in sorted order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Diff returns the attributes in next that differ from last. Keys absent
// from next are untouched and never appear in the result; keys present in
// next with nil values survive the diff as explicit clears unless last
// already held nil. An empty result means nothing needs pushing.
func Diff(last, next Attributes) Attributes {
	changed := make(Attributes)
	for k, v := range next {
		prev, ok := last[k]
		if ok && reflect.DeepEqual(prev, v) {
			continue
		}
		changed[k] = v
	}
	return changed
}

// Merge applies the pushed attributes on top of last, returning the new
// last-pushed snapshot the next Diff runs against.
func Merge(last, pushed Attributes) Attributes {
	out := last.Clone()
	if out == nil {
		out = make(Attributes, len(pushed))
	}
	for k, v := range pushed {
		out[k] = v
	}
	return out
}
