package threads

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// ParID is the dense index assigned to a key by ParIndexedMap.
type ParID = int64

// GetResult reports the ID for a key and whether this call created it.
type GetResult struct {
	ID          ParID
	JustCreated bool
}

const (
	parMapMaxEntries = 10_000_000
	parMapSpanSize   = 1_000
	parMapNumSpans   = parMapMaxEntries / parMapSpanSize
)

type parEntry[V any] struct {
	mu  sync.Mutex
	val V
}

type parSpan[V any] [parMapSpanSize]parEntry[V]

// ParIndexedMap assigns each key a stable dense ID and stores one value
// per ID. IDs are never freed. Entries live in fixed-size spans and
// carry their own mutex, so unrelated entries can be operated on
// concurrently; only ID allocation is serialized.
type ParIndexedMap[K comparable, V any] struct {
	spans [parMapNumSpans]atomic.Pointer[parSpan[V]]
	len   atomic.Int64

	addMu sync.Mutex
	idMap map[K]ParID
}

func NewParIndexedMap[K comparable, V any]() *ParIndexedMap[K, V] {
	return &ParIndexedMap[K, V]{idMap: make(map[K]ParID)}
}

// GetID looks up the ID for key, allocating one on first sight.
// Returns an error once the map is full.
func (m *ParIndexedMap[K, V]) GetID(key K) (GetResult, error) {
	m.addMu.Lock()
	defer m.addMu.Unlock()
	if id, ok := m.idMap[key]; ok {
		return GetResult{ID: id}, nil
	}
	id := m.len.Load()
	if id >= parMapMaxEntries {
		return GetResult{ID: -1}, fmt.Errorf("threads: ParIndexedMap is full (%d entries)", parMapMaxEntries)
	}
	if id%parMapSpanSize == 0 {
		m.spans[id/parMapSpanSize].Store(new(parSpan[V]))
	}
	m.len.Add(1)
	m.idMap[key] = id
	return GetResult{ID: id, JustCreated: true}, nil
}

func (m *ParIndexedMap[K, V]) entry(id ParID) *parEntry[V] {
	span := m.spans[id/parMapSpanSize].Load()
	return &span[id%parMapSpanSize]
}

// OnID runs fn with exclusive access to the value for id.
func (m *ParIndexedMap[K, V]) OnID(id ParID, fn func(*V)) {
	e := m.entry(id)
	e.mu.Lock()
	fn(&e.val)
	e.mu.Unlock()
}

// ForEach runs fn for every id in [start, end), locking entries one at
// a time in ID order.
func (m *ParIndexedMap[K, V]) ForEach(start, end ParID, fn func(ParID, *V)) {
	n := m.len.Load()
	if end > n {
		end = n
	}
	for id := start; id < end; id++ {
		e := m.entry(id)
		e.mu.Lock()
		fn(id, &e.val)
		e.mu.Unlock()
	}
}

// NumIDs returns the number of allocated IDs; all IDs below it are
// valid.
func (m *ParIndexedMap[K, V]) NumIDs() ParID {
	return m.len.Load()
}
