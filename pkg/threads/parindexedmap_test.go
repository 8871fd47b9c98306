package threads

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParIndexedMapAssignsDenseIDs(t *testing.T) {
	m := NewParIndexedMap[uint64, int]()

	r1, err := m.GetID(100)
	require.NoError(t, err)
	assert.Equal(t, GetResult{ID: 0, JustCreated: true}, r1)

	r2, err := m.GetID(200)
	require.NoError(t, err)
	assert.Equal(t, GetResult{ID: 1, JustCreated: true}, r2)

	again, err := m.GetID(100)
	require.NoError(t, err)
	assert.Equal(t, GetResult{ID: 0, JustCreated: false}, again)

	assert.Equal(t, ParID(2), m.NumIDs())
}

func TestParIndexedMapOnID(t *testing.T) {
	m := NewParIndexedMap[string, []string]()
	r, err := m.GetID("h")
	require.NoError(t, err)

	m.OnID(r.ID, func(v *[]string) { *v = append(*v, "a") })
	m.OnID(r.ID, func(v *[]string) { *v = append(*v, "b") })

	var got []string
	m.OnID(r.ID, func(v *[]string) { got = append(got, *v...) })
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestParIndexedMapForEachInOrder(t *testing.T) {
	m := NewParIndexedMap[int, int]()
	for i := 0; i < 2500; i++ { // crosses span boundaries
		r, err := m.GetID(i)
		require.NoError(t, err)
		m.OnID(r.ID, func(v *int) { *v = i })
	}

	var ids []ParID
	m.ForEach(0, m.NumIDs(), func(id ParID, v *int) {
		ids = append(ids, id)
		assert.Equal(t, int(id), *v)
	})
	assert.Len(t, ids, 2500)
	assert.True(t, sort.SliceIsSorted(ids, func(a, b int) bool { return ids[a] < ids[b] }))
}

func TestParIndexedMapConcurrentUpdates(t *testing.T) {
	m := NewParIndexedMap[uint64, int64]()
	const hosts = 64
	ids := make([]ParID, hosts)
	for i := 0; i < hosts; i++ {
		r, err := m.GetID(uint64(i))
		require.NoError(t, err)
		ids[i] = r.ID
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				m.OnID(ids[i%hosts], func(v *int64) { *v++ })
			}
		}()
	}
	wg.Wait()

	var total int64
	m.ForEach(0, m.NumIDs(), func(_ ParID, v *int64) { total += *v })
	assert.Equal(t, int64(8000), total)
}
