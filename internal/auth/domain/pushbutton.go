package domain

import (
	"sync"

	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

// PushButtonState names the coordinator's current phase.
type PushButtonState string

const (
	PushButtonIdle    PushButtonState = "idle"
	PushButtonPending PushButtonState = "pending"
)

// PushButtonOutcome is delivered to the requesting client when a
// transaction resolves.
type PushButtonOutcome struct {
	TransactionID valuetype.PairingTransactionID
	Success       bool
	Token         string // plaintext; empty on failure
}

// pendingTransaction tracks the in-flight pairing request.
type pendingTransaction struct {
	id              valuetype.PairingTransactionID
	deviceName      string
	requesterClient valuetype.DeviceID
}

// PushButtonCoordinator implements §4.G's push-button auth state machine:
// at most one transaction Pending at a time, held entirely in memory
// since it must be exact and instantaneous. It assumes callers serialize
// access through the single core work queue (§5) — it takes no lock of
// its own beyond what's needed for safety if that assumption is ever
// violated in a test.
type PushButtonCoordinator struct {
	mu      sync.Mutex
	state   PushButtonState
	pending *pendingTransaction
}

// NewPushButtonCoordinator returns a coordinator in the Idle state.
func NewPushButtonCoordinator() *PushButtonCoordinator {
	return &PushButtonCoordinator{state: PushButtonIdle}
}

// Request starts a new pairing transaction. If one is already Pending,
// it is pre-empted: the caller must deliver a failure PushButtonOutcome
// to its original requester (returned as a non-nil preempted, together
// with that requester as preemptedClient) before the new transaction
// begins.
func (c *PushButtonCoordinator) Request(deviceName string, requesterClient valuetype.DeviceID) (txID valuetype.PairingTransactionID, preempted *PushButtonOutcome, preemptedClient valuetype.DeviceID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == PushButtonPending && c.pending != nil {
		preempted = &PushButtonOutcome{TransactionID: c.pending.id, Success: false}
		preemptedClient = c.pending.requesterClient
	}

	id := valuetype.NewPairingTransactionID()
	c.pending = &pendingTransaction{id: id, deviceName: deviceName, requesterClient: requesterClient}
	c.state = PushButtonPending
	return id, preempted, preemptedClient
}

// Pressed resolves the pending transaction as a success, returning the
// transaction id and the requesting client so the caller can mint a
// token and deliver the outcome.
func (c *PushButtonCoordinator) Pressed() (txID valuetype.PairingTransactionID, requesterClient valuetype.DeviceID, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != PushButtonPending || c.pending == nil {
		return valuetype.PairingTransactionID{}, valuetype.DeviceID{}, false
	}
	txID = c.pending.id
	requesterClient = c.pending.requesterClient
	c.pending = nil
	c.state = PushButtonIdle
	return txID, requesterClient, true
}

// Cancel resolves the pending transaction (if it matches tx, or
// unconditionally if tx is the zero value — used for the "requester
// disconnects" edge case) as a failure.
func (c *PushButtonCoordinator) Cancel(tx valuetype.PairingTransactionID) (requesterClient valuetype.DeviceID, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != PushButtonPending || c.pending == nil {
		return valuetype.DeviceID{}, false
	}
	if !tx.Zero() && c.pending.id != tx {
		return valuetype.DeviceID{}, false
	}
	requesterClient = c.pending.requesterClient
	c.pending = nil
	c.state = PushButtonIdle
	return requesterClient, true
}

// State reports the coordinator's current phase, for diagnostics.
func (c *PushButtonCoordinator) State() PushButtonState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
