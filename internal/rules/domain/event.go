package domain

import (
	"time"

	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

// Event is a timestamped occurrence emitted by a device, identified by
// an EventTypeId and carrying typed parameters.
type Event struct {
	EventTypeID valuetype.EventTypeID
	DeviceID    valuetype.DeviceID
	Interface   string // set instead of DeviceID for interface-bound events
	Name        string // interface-bound event name
	Params      map[valuetype.ParamTypeID]valuetype.TypedValue
	OccurredAt  time.Time
}

// EventDescriptor matches an Event. It is either device-bound
// (EventTypeID + DeviceID) or interface-bound (Interface + EventName),
// plus a list of ParamDescriptors that must all match the event's
// params.
type EventDescriptor struct {
	EventTypeID valuetype.EventTypeID
	DeviceID    valuetype.DeviceID

	Interface string
	EventName string

	Params []valuetype.ParamDescriptor
}

func (d EventDescriptor) deviceBound() bool { return d.Interface == "" }

// Matches reports whether e satisfies this descriptor: matching
// typeId/deviceId (or interface/name), and every listed ParamDescriptor
// holds against the event's params.
func (d EventDescriptor) Matches(e Event) bool {
	if d.deviceBound() {
		if d.EventTypeID != e.EventTypeID || d.DeviceID != e.DeviceID {
			return false
		}
	} else {
		if d.Interface != e.Interface || d.EventName != e.Name {
			return false
		}
	}
	for _, pd := range d.Params {
		v, ok := e.Params[pd.ParamTypeID]
		if !ok || !pd.Matches(v) {
			return false
		}
	}
	return true
}

// Equals implements descriptor equality: matching ids/interface and
// matching params (§3).
func (d EventDescriptor) Equals(other EventDescriptor) bool {
	if d.deviceBound() != other.deviceBound() {
		return false
	}
	if d.deviceBound() {
		if d.EventTypeID != other.EventTypeID || d.DeviceID != other.DeviceID {
			return false
		}
	} else {
		if d.Interface != other.Interface || d.EventName != other.EventName {
			return false
		}
	}
	if len(d.Params) != len(other.Params) {
		return false
	}
	for i := range d.Params {
		if !d.Params[i].Equals(other.Params[i]) {
			return false
		}
	}
	return true
}
