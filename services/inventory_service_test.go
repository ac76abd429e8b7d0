package services

import (
	"context"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketflow/internal/status"
	"ticketflow/models"
)

func setupInventoryService() (*InventoryService, redismock.ClientMock, *memStore) {
	db, mock := redismock.NewClientMock()
	st := newMemStore()
	return NewInventoryService(db, st), mock, st
}

func TestInventory_ReserveDecrements(t *testing.T) {
	svc, mock, _ := setupInventoryService()
	defer mock.ClearExpect()

	mock.ExpectEval(reserveScript, []string{"capacity:event:event-1"}, 2).SetVal(int64(8))

	remaining, err := svc.Reserve(context.Background(), "event-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 8, remaining)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventory_ReserveInsufficient(t *testing.T) {
	svc, mock, _ := setupInventoryService()
	defer mock.ClearExpect()

	mock.ExpectEval(reserveScript, []string{"capacity:event:event-1"}, 5).SetVal(int64(-1))

	_, err := svc.Reserve(context.Background(), "event-1", 5)
	assert.ErrorIs(t, err, status.ErrCapacityExceeded)
}

func TestInventory_ReserveSeedsUnsetCounter(t *testing.T) {
	svc, mock, st := setupInventoryService()
	defer mock.ClearExpect()

	st.events["event-1"] = &models.Event{ID: "event-1", RemainingSeats: 10}

	mock.ExpectEval(reserveScript, []string{"capacity:event:event-1"}, 2).SetVal(int64(-2))
	mock.ExpectSetNX("capacity:event:event-1", 10, 0).SetVal(true)
	mock.ExpectEval(reserveScript, []string{"capacity:event:event-1"}, 2).SetVal(int64(8))

	remaining, err := svc.Reserve(context.Background(), "event-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 8, remaining)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventory_ReseedAfterCounterLossKeepsSoldSeats(t *testing.T) {
	svc, mock, st := setupInventoryService()
	defer mock.ClearExpect()

	st.events["event-1"] = &models.Event{ID: "event-1", RemainingSeats: 10}

	mock.ExpectEval(reserveScript, []string{"capacity:event:event-1"}, 2).SetVal(int64(8))

	remaining, err := svc.Reserve(context.Background(), "event-1", 2)
	require.NoError(t, err)
	require.Equal(t, 8, remaining)

	// The reservation trails onto the durable row.
	assert.Equal(t, 8, st.events["event-1"].RemainingSeats)

	// The counter is gone, as after a Redis flush. The reseed starts
	// from the decremented row, so the two seats already sold cannot be
	// sold a second time.
	mock.ExpectEval(reserveScript, []string{"capacity:event:event-1"}, 2).SetVal(int64(-2))
	mock.ExpectSetNX("capacity:event:event-1", 8, 0).SetVal(true)
	mock.ExpectEval(reserveScript, []string{"capacity:event:event-1"}, 2).SetVal(int64(6))

	remaining, err = svc.Reserve(context.Background(), "event-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 6, remaining)
	assert.Equal(t, 6, st.events["event-1"].RemainingSeats)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventory_ReleasePersistsSeatCount(t *testing.T) {
	svc, mock, st := setupInventoryService()
	defer mock.ClearExpect()

	st.events["event-1"] = &models.Event{ID: "event-1", RemainingSeats: 5}

	mock.ExpectIncrBy("capacity:event:event-1", 2).SetVal(7)

	remaining, err := svc.Release(context.Background(), "event-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 7, remaining)
	assert.Equal(t, 7, st.events["event-1"].RemainingSeats)
}

func TestInventory_ReserveUnknownEvent(t *testing.T) {
	svc, mock, _ := setupInventoryService()
	defer mock.ClearExpect()

	mock.ExpectEval(reserveScript, []string{"capacity:event:ghost"}, 1).SetVal(int64(-2))

	_, err := svc.Reserve(context.Background(), "ghost", 1)
	assert.ErrorIs(t, err, status.ErrEventNotFound)
}

func TestInventory_ReserveRejectsNonPositiveQuantity(t *testing.T) {
	svc, _, _ := setupInventoryService()

	_, err := svc.Reserve(context.Background(), "event-1", 0)
	assert.Error(t, err)

	_, err = svc.Reserve(context.Background(), "event-1", -3)
	assert.Error(t, err)
}

func TestInventory_Release(t *testing.T) {
	svc, mock, _ := setupInventoryService()
	defer mock.ClearExpect()

	mock.ExpectIncrBy("capacity:event:event-1", 2).SetVal(7)

	remaining, err := svc.Release(context.Background(), "event-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 7, remaining)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventory_RemainingFallsBackToEventRow(t *testing.T) {
	svc, mock, st := setupInventoryService()
	defer mock.ClearExpect()

	st.events["event-1"] = &models.Event{ID: "event-1", RemainingSeats: 42}

	mock.ExpectGet("capacity:event:event-1").RedisNil()

	remaining, err := svc.Remaining(context.Background(), "event-1")
	require.NoError(t, err)
	assert.Equal(t, 42, remaining)
}
