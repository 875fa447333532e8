// Package cmap provides a concurrent string-keyed map.
//
// The map is split into shards, each guarded by its own RWMutex, so that
// operations on unrelated keys do not contend. Every single-key operation,
// including the conditional ones (SetIfAbsent, DeleteIf, Update), runs under
// one shard lock and is therefore atomic with respect to that key.
//
// Usage:
//
//	m := cmap.New[*Handle]()
//	if m.SetIfAbsent("15551234567", h) {
//		// we own the slot
//	}
//
// Iteration (Range, Keys) locks shard by shard; the view is consistent per
// shard but not across shards.
package cmap
