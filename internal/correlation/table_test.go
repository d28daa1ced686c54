package correlation

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_PutTake(t *testing.T) {
	tbl, err := New(10)
	require.NoError(t, err)

	tbl.Put("1", "req_42")
	ctx, ok := tbl.Take("1")
	assert.True(t, ok)
	assert.Equal(t, "req_42", ctx)
	assert.Equal(t, 0, tbl.Len())
}

func TestTable_TakeTwice(t *testing.T) {
	tbl, err := New(10)
	require.NoError(t, err)

	tbl.Put("1", "req_42")

	_, ok := tbl.Take("1")
	require.True(t, ok)

	// Duplicate reveal delivery must find nothing the second time.
	_, ok = tbl.Take("1")
	assert.False(t, ok)
}

func TestTable_TakeUnknown(t *testing.T) {
	tbl, err := New(10)
	require.NoError(t, err)

	_, ok := tbl.Take("999")
	assert.False(t, ok)
}

func TestTable_EvictsOldestFirst(t *testing.T) {
	tbl, err := New(3)
	require.NoError(t, err)

	tbl.Put("1", "req_1")
	tbl.Put("2", "req_2")
	tbl.Put("3", "req_3")
	tbl.Put("4", "req_4") // evicts "1", the oldest insertion

	assert.Equal(t, 3, tbl.Len())

	_, ok := tbl.Take("1")
	assert.False(t, ok, "oldest entry should have been evicted")

	for i := 2; i <= 4; i++ {
		ctx, ok := tbl.Take(fmt.Sprint(i))
		require.True(t, ok, "entry %d should survive", i)
		assert.Equal(t, fmt.Sprintf("req_%d", i), ctx)
	}
}

func TestTable_FIFONotDisturbedByTake(t *testing.T) {
	tbl, err := New(3)
	require.NoError(t, err)

	tbl.Put("1", "req_1")
	tbl.Put("2", "req_2")
	tbl.Put("3", "req_3")

	// Taking "2" frees a slot; the next two inserts must evict "1" before "3".
	_, ok := tbl.Take("2")
	require.True(t, ok)

	tbl.Put("4", "req_4")
	tbl.Put("5", "req_5") // evicts "1"

	_, ok = tbl.Take("1")
	assert.False(t, ok)
	_, ok = tbl.Take("3")
	assert.True(t, ok)
}

func TestTable_DefaultCapacity(t *testing.T) {
	tbl, err := New(0)
	require.NoError(t, err)

	for i := 0; i < DefaultCapacity+5; i++ {
		tbl.Put(fmt.Sprint(i), fmt.Sprintf("req_%d", i))
	}
	assert.Equal(t, DefaultCapacity, tbl.Len())

	// The five oldest entries are gone.
	for i := 0; i < 5; i++ {
		_, ok := tbl.Take(fmt.Sprint(i))
		assert.False(t, ok, "entry %d should have been evicted", i)
	}
}

func TestTable_ConcurrentAccess(t *testing.T) {
	tbl, err := New(100)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("%d-%d", g, i)
				tbl.Put(id, "req_"+id)
				tbl.Take(id)
			}
		}(g)
	}
	wg.Wait()
}
