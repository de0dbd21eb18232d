package spamcheck

import (
	"container/ring"
	"sync"
)

const maxContentLen = 1024

// LastRequests keeps track of last N entries, thread-safe.
type LastRequests struct {
	entries *ring.Ring
	size    int
	lock    sync.RWMutex
}

// NewLastRequests creates new history tracker
func NewLastRequests(size int) *LastRequests {
	// minimum size is 1
	if size < 1 {
		size = 1
	}
	return &LastRequests{
		entries: ring.New(size),
		size:    size,
	}
}

// Push adds new entry to the history. Comment content is truncated to 1024 runes,
// fields are copied and the caller's map is not changed.
func (h *LastRequests) Push(e Entry) {
	fields := make(map[string]string, len(e.Request.Fields))
	for k, v := range e.Request.Fields {
		if k == "comment_content" {
			if runes := []rune(v); len(runes) > maxContentLen {
				v = string(runes[:maxContentLen])
			}
		}
		fields[k] = v
	}
	e.Request.Fields = fields

	h.lock.Lock()
	defer h.lock.Unlock()

	h.entries.Value = e
	h.entries = h.entries.Next()
}

// Last returns up to n last entries in chronological order (oldest to newest)
func (h *LastRequests) Last(n int) []Entry {
	if n < 1 {
		return []Entry{}
	}

	h.lock.RLock()
	defer h.lock.RUnlock()

	if n > h.size {
		n = h.size
	}

	result := make([]Entry, 0, h.size)
	h.entries.Do(func(v interface{}) {
		if v != nil {
			if e, ok := v.(Entry); ok {
				result = append(result, e)
			}
		}
	})

	if len(result) > n {
		result = result[len(result)-n:]
	}
	return result
}

// Size returns the size of history
func (h *LastRequests) Size() int {
	return h.size
}
