package token

import (
	"sort"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	id, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if len(id) != 26 {
		t.Errorf("len(New()) = %d, want 26", len(id))
	}
}

func TestNew_Ordered(t *testing.T) {
	ids := make([]string, 200)
	seen := make(map[string]bool, len(ids))
	for i := range ids {
		id, err := New()
		if err != nil {
			t.Fatal(err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
		ids[i] = id
	}
	if !sort.StringsAreSorted(ids) {
		t.Error("ids are not in generation order")
	}
}

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("req-")
	if !strings.HasPrefix(id, "req-") || len(id) != len("req-")+26 {
		t.Errorf("WithPrefix() = %q", id)
	}
}

func TestTime(t *testing.T) {
	before := time.Now().Add(-time.Second)
	id, err := New()
	if err != nil {
		t.Fatal(err)
	}

	ts, err := Time(id)
	if err != nil {
		t.Fatalf("Time() error = %v", err)
	}
	if ts.Before(before) || ts.After(time.Now().Add(time.Second)) {
		t.Errorf("Time() = %v, want about now", ts)
	}

	if _, err := Time("not-a-ulid"); err == nil {
		t.Error("Time() accepted an invalid id")
	}
}
