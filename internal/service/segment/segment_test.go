package segment

import (
	"strconv"
	"strings"
	"sync"
	"testing"
)

func TestGenerator_Next(t *testing.T) {
	gen := New()

	tests := []struct {
		session string
		want    string
	}{
		{"sess-123", "sess-123-turn-1"},
		{"sess-123", "sess-123-turn-2"},
		{"sess-456", "sess-456-turn-3"},
	}
	for _, tt := range tests {
		if got := gen.Next(tt.session); got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, got)
		}
	}
}

func TestGenerator_ThreadSafety(t *testing.T) {
	gen := New()
	const goroutines, perGoroutine = 100, 10

	var wg sync.WaitGroup
	results := make(chan string, goroutines*perGoroutine)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				results <- gen.Next("sess-concurrent")
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	for id := range results {
		if seen[id] {
			t.Errorf("duplicate turn ID generated: %s", id)
		}
		seen[id] = true
	}
	if len(seen) != goroutines*perGoroutine {
		t.Errorf("expected %d unique turn IDs, got %d", goroutines*perGoroutine, len(seen))
	}
}

func TestGenerator_CounterMonotonic(t *testing.T) {
	gen := New()

	var prev uint64
	for i := 0; i < 100; i++ {
		id := gen.Next("sess-test")
		n, err := strconv.ParseUint(id[strings.LastIndex(id, "-")+1:], 10, 64)
		if err != nil {
			t.Fatalf("failed to parse turn ID %s: %v", id, err)
		}
		if n <= prev {
			t.Errorf("counter not monotonic: %d <= %d", n, prev)
		}
		prev = n
	}
}
