package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

func TestPushButtonCoordinator_RequestPressedFlow(t *testing.T) {
	c := NewPushButtonCoordinator()
	assert.Equal(t, PushButtonIdle, c.State())

	requester := valuetype.NewDeviceID()
	txID, preempted, _ := c.Request("front-door", requester)
	assert.Nil(t, preempted)
	assert.False(t, txID.Zero())
	assert.Equal(t, PushButtonPending, c.State())

	gotTx, gotClient, ok := c.Pressed()
	require.True(t, ok)
	assert.Equal(t, txID, gotTx)
	assert.Equal(t, requester, gotClient)
	assert.Equal(t, PushButtonIdle, c.State())
}

func TestPushButtonCoordinator_Pressed_NoPendingTransaction(t *testing.T) {
	c := NewPushButtonCoordinator()
	_, _, ok := c.Pressed()
	assert.False(t, ok)
}

func TestPushButtonCoordinator_Request_PreemptsExisting(t *testing.T) {
	c := NewPushButtonCoordinator()
	firstRequester := valuetype.NewDeviceID()
	firstTx, _, _ := c.Request("front-door", firstRequester)

	secondRequester := valuetype.NewDeviceID()
	_, preempted, preemptedClient := c.Request("back-door", secondRequester)

	require.NotNil(t, preempted)
	assert.Equal(t, firstTx, preempted.TransactionID)
	assert.False(t, preempted.Success)
	assert.Equal(t, firstRequester, preemptedClient)

	// The new transaction is now the one that resolves.
	_, gotClient, ok := c.Pressed()
	require.True(t, ok)
	assert.Equal(t, secondRequester, gotClient)
}

func TestPushButtonCoordinator_Cancel_SpecificTransaction(t *testing.T) {
	c := NewPushButtonCoordinator()
	requester := valuetype.NewDeviceID()
	txID, _, _ := c.Request("front-door", requester)

	gotClient, ok := c.Cancel(txID)
	require.True(t, ok)
	assert.Equal(t, requester, gotClient)
	assert.Equal(t, PushButtonIdle, c.State())
}

func TestPushButtonCoordinator_Cancel_WrongTransactionIDIsNoop(t *testing.T) {
	c := NewPushButtonCoordinator()
	requester := valuetype.NewDeviceID()
	c.Request("front-door", requester)

	_, ok := c.Cancel(valuetype.NewPairingTransactionID())
	assert.False(t, ok)
	assert.Equal(t, PushButtonPending, c.State())
}

func TestPushButtonCoordinator_Cancel_ZeroTransactionIDCancelsUnconditionally(t *testing.T) {
	c := NewPushButtonCoordinator()
	requester := valuetype.NewDeviceID()
	c.Request("front-door", requester)

	var zero valuetype.PairingTransactionID
	gotClient, ok := c.Cancel(zero)
	require.True(t, ok)
	assert.Equal(t, requester, gotClient)
	assert.Equal(t, PushButtonIdle, c.State())
}

func TestPushButtonCoordinator_Cancel_NothingPending(t *testing.T) {
	c := NewPushButtonCoordinator()
	_, ok := c.Cancel(valuetype.NewPairingTransactionID())
	assert.False(t, ok)
}
