package cmap

// Range iterates over all key-value pairs.
// The callback returns false to stop iteration. It must not call back into
// the map for a key in the same shard.
func (m *Map[V]) Range(fn func(key string, value V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Keys returns all keys in unspecified order.
func (m *Map[V]) Keys() []string {
	keys := make([]string, 0, m.Count())
	m.Range(func(key string, _ V) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// SetIfAbsent sets the value only if the key does not exist.
// Returns true if the value was set, false if the key already exists.
func (m *Map[V]) SetIfAbsent(key string, value V) bool {
	s := m.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[key]; ok {
		return false
	}
	s.items[key] = value
	return true
}

// Update atomically replaces the value for key with the result of fn.
// fn receives the current value and whether it exists; when fn returns
// keep=false the key is left unchanged. Returns the stored value and
// whether fn chose to store it.
func (m *Map[V]) Update(key string, fn func(value V, exists bool) (next V, keep bool)) (V, bool) {
	s := m.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.items[key]
	next, keep := fn(current, exists)
	if !keep {
		return current, false
	}
	s.items[key] = next
	return next, true
}

// Pop removes a key and returns its value.
func (m *Map[V]) Pop(key string) (V, bool) {
	s := m.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.items[key]
	if ok {
		delete(s.items, key)
	}
	return v, ok
}

// DeleteIf removes key only when pred returns true for its current value.
// Returns true if the key was removed.
func (m *Map[V]) DeleteIf(key string, pred func(value V) bool) bool {
	s := m.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.items[key]
	if !ok || !pred(v) {
		return false
	}
	delete(s.items, key)
	return true
}

// Drain removes every item and returns them.
func (m *Map[V]) Drain() map[string]V {
	out := make(map[string]V)
	for _, s := range m.shards {
		s.mu.Lock()
		for k, v := range s.items {
			out[k] = v
		}
		s.items = make(map[string]V)
		s.mu.Unlock()
	}
	return out
}
