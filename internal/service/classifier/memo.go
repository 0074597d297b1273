package classifier

import (
	"strconv"
	"strings"
	"sync"
)

// memo is a bounded FIFO cache of successful results. A nil memo is valid
// and stores nothing.
type memo struct {
	mu    sync.Mutex
	size  int
	order []string
	items map[string]Result
}

func newMemo(size int) *memo {
	return &memo{size: size, items: make(map[string]Result, size)}
}

func memoKey(stateID int, text string) string {
	return strconv.Itoa(stateID) + "\x00" + strings.ToLower(text)
}

func (m *memo) get(key string) (Result, bool) {
	if m == nil {
		return Result{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[key]
	return r, ok
}

func (m *memo) put(key string, r Result) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[key]; ok {
		return
	}
	if len(m.order) >= m.size {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.items, oldest)
	}
	m.order = append(m.order, key)
	m.items[key] = r
}
