// Package valuetype contains the identifier and typed-value primitives
// shared by every other component: opaque 128-bit identifiers that never
// interchange between kinds, the tagged-union TypedValue, and the
// ParamType/ParamDescriptor declarations built on top of it.
package valuetype

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// idKind tags which identifier kind a UUID belongs to, so that two
// identically-valued UUIDs of different kinds are never accidentally
// compared equal by a caller that forgot which kind it held.
type idKind uint8

const (
	kindRule idKind = iota + 1
	kindDevice
	kindEventType
	kindActionType
	kindStateType
	kindParamType
	kindToken
	kindPairingTransaction
)

// RuleID identifies a Rule. Never compares equal to any other ID kind.
type RuleID struct {
	u uuid.UUID
}

// DeviceID identifies a device known to the DeviceRegistry.
type DeviceID struct{ u uuid.UUID }

// EventTypeID identifies a kind of device event.
type EventTypeID struct{ u uuid.UUID }

// ActionTypeID identifies a kind of device action.
type ActionTypeID struct{ u uuid.UUID }

// StateTypeID identifies a kind of device state.
type StateTypeID struct{ u uuid.UUID }

// ParamTypeID identifies a parameter declaration.
type ParamTypeID struct{ u uuid.UUID }

// TokenID identifies an issued bearer token.
type TokenID struct{ u uuid.UUID }

// PairingTransactionID identifies a push-button authentication transaction.
type PairingTransactionID struct{ u uuid.UUID }

// NewRuleID generates a fresh RuleID.
func NewRuleID() RuleID { return RuleID{uuid.New()} }

// NewDeviceID generates a fresh DeviceID.
func NewDeviceID() DeviceID { return DeviceID{uuid.New()} }

// NewEventTypeID generates a fresh EventTypeID.
func NewEventTypeID() EventTypeID { return EventTypeID{uuid.New()} }

// NewActionTypeID generates a fresh ActionTypeID.
func NewActionTypeID() ActionTypeID { return ActionTypeID{uuid.New()} }

// NewStateTypeID generates a fresh StateTypeID.
func NewStateTypeID() StateTypeID { return StateTypeID{uuid.New()} }

// NewParamTypeID generates a fresh ParamTypeID.
func NewParamTypeID() ParamTypeID { return ParamTypeID{uuid.New()} }

// NewTokenID generates a fresh TokenID.
func NewTokenID() TokenID { return TokenID{uuid.New()} }

// NewPairingTransactionID generates a fresh PairingTransactionID.
func NewPairingTransactionID() PairingTransactionID { return PairingTransactionID{uuid.New()} }

// Zero reports whether the id has never been assigned a value.
func (id RuleID) Zero() bool                 { return id.u == uuid.Nil }
func (id DeviceID) Zero() bool               { return id.u == uuid.Nil }
func (id EventTypeID) Zero() bool            { return id.u == uuid.Nil }
func (id ActionTypeID) Zero() bool           { return id.u == uuid.Nil }
func (id StateTypeID) Zero() bool            { return id.u == uuid.Nil }
func (id ParamTypeID) Zero() bool            { return id.u == uuid.Nil }
func (id TokenID) Zero() bool                { return id.u == uuid.Nil }
func (id PairingTransactionID) Zero() bool   { return id.u == uuid.Nil }

func (id RuleID) String() string               { return id.u.String() }
func (id DeviceID) String() string             { return id.u.String() }
func (id EventTypeID) String() string          { return id.u.String() }
func (id ActionTypeID) String() string         { return id.u.String() }
func (id StateTypeID) String() string          { return id.u.String() }
func (id ParamTypeID) String() string          { return id.u.String() }
func (id TokenID) String() string              { return id.u.String() }
func (id PairingTransactionID) String() string { return id.u.String() }

// ParseRuleID parses a UUID string into a RuleID.
func ParseRuleID(s string) (RuleID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return RuleID{}, fmt.Errorf("rule id: %w", err)
	}
	return RuleID{u}, nil
}

// ParseDeviceID parses a UUID string into a DeviceID.
func ParseDeviceID(s string) (DeviceID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return DeviceID{}, fmt.Errorf("device id: %w", err)
	}
	return DeviceID{u}, nil
}

// ParseEventTypeID parses a UUID string into an EventTypeID.
func ParseEventTypeID(s string) (EventTypeID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return EventTypeID{}, fmt.Errorf("event type id: %w", err)
	}
	return EventTypeID{u}, nil
}

// ParseActionTypeID parses a UUID string into an ActionTypeID.
func ParseActionTypeID(s string) (ActionTypeID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ActionTypeID{}, fmt.Errorf("action type id: %w", err)
	}
	return ActionTypeID{u}, nil
}

// ParseStateTypeID parses a UUID string into a StateTypeID.
func ParseStateTypeID(s string) (StateTypeID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return StateTypeID{}, fmt.Errorf("state type id: %w", err)
	}
	return StateTypeID{u}, nil
}

// ParseParamTypeID parses a UUID string into a ParamTypeID.
func ParseParamTypeID(s string) (ParamTypeID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ParamTypeID{}, fmt.Errorf("param type id: %w", err)
	}
	return ParamTypeID{u}, nil
}

// ParseTokenID parses a UUID string into a TokenID.
func ParseTokenID(s string) (TokenID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return TokenID{}, fmt.Errorf("token id: %w", err)
	}
	return TokenID{u}, nil
}

// ParsePairingTransactionID parses a UUID string into a PairingTransactionID.
func ParsePairingTransactionID(s string) (PairingTransactionID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return PairingTransactionID{}, fmt.Errorf("pairing transaction id: %w", err)
	}
	return PairingTransactionID{u}, nil
}

// JSON marshalling: each ID kind marshals as its bare UUID string so the
// wire format matches §6 (ids are plain UUID strings in JSON-RPC params).

func (id RuleID) MarshalJSON() ([]byte, error)  { return json.Marshal(id.u.String()) }
func (id *RuleID) UnmarshalJSON(b []byte) error { return unmarshalUUID(b, &id.u) }

func (id DeviceID) MarshalJSON() ([]byte, error)  { return json.Marshal(id.u.String()) }
func (id *DeviceID) UnmarshalJSON(b []byte) error { return unmarshalUUID(b, &id.u) }

func (id EventTypeID) MarshalJSON() ([]byte, error)  { return json.Marshal(id.u.String()) }
func (id *EventTypeID) UnmarshalJSON(b []byte) error { return unmarshalUUID(b, &id.u) }

func (id ActionTypeID) MarshalJSON() ([]byte, error)  { return json.Marshal(id.u.String()) }
func (id *ActionTypeID) UnmarshalJSON(b []byte) error { return unmarshalUUID(b, &id.u) }

func (id StateTypeID) MarshalJSON() ([]byte, error)  { return json.Marshal(id.u.String()) }
func (id *StateTypeID) UnmarshalJSON(b []byte) error { return unmarshalUUID(b, &id.u) }

func (id ParamTypeID) MarshalJSON() ([]byte, error)  { return json.Marshal(id.u.String()) }
func (id *ParamTypeID) UnmarshalJSON(b []byte) error { return unmarshalUUID(b, &id.u) }

func (id TokenID) MarshalJSON() ([]byte, error)  { return json.Marshal(id.u.String()) }
func (id *TokenID) UnmarshalJSON(b []byte) error { return unmarshalUUID(b, &id.u) }

func (id PairingTransactionID) MarshalJSON() ([]byte, error) { return json.Marshal(id.u.String()) }
func (id *PairingTransactionID) UnmarshalJSON(b []byte) error {
	return unmarshalUUID(b, &id.u)
}

func unmarshalUUID(b []byte, dst *uuid.UUID) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*dst = uuid.Nil
		return nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	*dst = u
	return nil
}

// Value implements database/sql/driver.Valuer for RuleID, DeviceID and
// TokenID so they can be bound directly as query parameters by the
// SQLite/Postgres repositories. The ids have no Scan method.

func (id RuleID) Value() (driver.Value, error) { return id.u.String(), nil }
func (id DeviceID) Value() (driver.Value, error) { return id.u.String(), nil }
func (id TokenID) Value() (driver.Value, error) { return id.u.String(), nil }
