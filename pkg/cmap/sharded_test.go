package cmap

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestNewWithShards(t *testing.T) {
	tests := []struct {
		shards int
		want   int
	}{
		{1, 1},
		{8, 8},
		{32, 32},
		{0, DefaultShardCount},
		{-1, DefaultShardCount},
		{7, DefaultShardCount},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("shards=%d", tt.shards), func(t *testing.T) {
			m := NewWithShards[int](tt.shards)
			if got := m.ShardCount(); got != tt.want {
				t.Errorf("ShardCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSetGetDelete(t *testing.T) {
	m := New[string]()

	m.Set("a", "1")
	if v, ok := m.Get("a"); !ok || v != "1" {
		t.Errorf("Get(a) = %q, %v", v, ok)
	}
	if !m.Has("a") {
		t.Error("Has(a) = false")
	}

	m.Delete("a")
	if m.Has("a") {
		t.Error("Has(a) after delete = true")
	}
	if _, ok := m.Get("missing"); ok {
		t.Error("Get(missing) reported present")
	}
}

func TestCountAndClear(t *testing.T) {
	m := New[int]()
	for i := 0; i < 100; i++ {
		m.Set(fmt.Sprintf("k%d", i), i)
	}
	if m.Count() != 100 {
		t.Errorf("Count() = %d, want 100", m.Count())
	}

	m.Clear()
	if m.Count() != 0 {
		t.Errorf("Count() after Clear = %d", m.Count())
	}
}

func TestConcurrentAccess(t *testing.T) {
	m := New[int]()
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("g%d-%d", g, i)
				m.Set(key, i)
				m.Get(key)
				if i%2 == 0 {
					m.Delete(key)
				}
			}
		}(g)
	}
	wg.Wait()

	if got := m.Count(); got != 8*250 {
		t.Errorf("Count() = %d, want %d", got, 8*250)
	}
}

func TestSetIfAbsent_SingleWinner(t *testing.T) {
	m := New[int]()
	var wins atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if m.SetIfAbsent("same", i) {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("SetIfAbsent winners = %d, want 1", wins.Load())
	}
}
