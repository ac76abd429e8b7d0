package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectCapacityMetrics_WalksCursor(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()

	m := &Monitor{redis: db}

	// Two scan pages; the collector follows the cursor to the end.
	mock.ExpectScan(0, "capacity:event:*", 100).SetVal([]string{
		"capacity:event:ev-1",
		"capacity:event:ev-2",
	}, 7)
	mock.ExpectGet("capacity:event:ev-1").SetVal("8")
	mock.ExpectGet("capacity:event:ev-2").SetVal("3")
	mock.ExpectScan(7, "capacity:event:*", 100).SetVal([]string{
		"capacity:event:ev-3",
	}, 0)
	mock.ExpectGet("capacity:event:ev-3").SetVal("42")

	m.collectCapacityMetrics(context.Background())

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 8.0, testutil.ToFloat64(eventCapacity.WithLabelValues("ev-1")))
	assert.Equal(t, 3.0, testutil.ToFloat64(eventCapacity.WithLabelValues("ev-2")))
	assert.Equal(t, 42.0, testutil.ToFloat64(eventCapacity.WithLabelValues("ev-3")))
}

func TestMonitor_StopEndsCollector(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()

	m := NewMonitor(db)

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("collector did not stop")
	}
}

func TestMonitor_StopOnZeroValue(t *testing.T) {
	var m Monitor
	m.Stop()
}
