package emergency_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qtdlabs/muletrace/internal/emergency"
)

func TestRecordAndRecent(t *testing.T) {
	log := emergency.NewLog(4)

	log.Record("detect", "scorer unreachable")
	log.Record("freeze", "audit append failed")

	notes := log.Recent(10)
	require.Len(t, notes, 2)
	assert.Equal(t, "freeze", notes[0].Op)
	assert.Equal(t, "detect", notes[1].Op)
	assert.False(t, notes[0].At.IsZero())
	assert.Equal(t, 2, log.Size())
}

func TestOverflowOverwritesOldest(t *testing.T) {
	log := emergency.NewLog(3)

	for i := range 5 {
		log.Record(fmt.Sprintf("op-%d", i), "detail")
	}

	assert.Equal(t, 3, log.Size())
	notes := log.Recent(3)
	require.Len(t, notes, 3)
	assert.Equal(t, "op-4", notes[0].Op)
	assert.Equal(t, "op-3", notes[1].Op)
	assert.Equal(t, "op-2", notes[2].Op)
}

func TestRecentBounded(t *testing.T) {
	log := emergency.NewLog(4)
	log.Record("a", "")
	log.Record("b", "")
	log.Record("c", "")

	notes := log.Recent(2)
	require.Len(t, notes, 2)
	assert.Equal(t, "c", notes[0].Op)
	assert.Equal(t, "b", notes[1].Op)

	assert.Len(t, log.Recent(-1), 3)
	assert.Empty(t, log.Recent(0))
}

func TestZeroCapacityFallsBackToOne(t *testing.T) {
	log := emergency.NewLog(0)

	log.Record("first", "")
	log.Record("second", "")

	assert.Equal(t, 1, log.Size())
	notes := log.Recent(5)
	require.Len(t, notes, 1)
	assert.Equal(t, "second", notes[0].Op)
}

func TestConcurrentRecords(t *testing.T) {
	const writers = 32

	log := emergency.NewLog(8)

	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Record(fmt.Sprintf("op-%d", i), "detail")
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, log.Size())
	assert.Len(t, log.Recent(100), 8)
}
