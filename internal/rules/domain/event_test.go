package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

func TestEventDescriptor_Matches_DeviceBound(t *testing.T) {
	device := valuetype.NewDeviceID()
	eventType := valuetype.NewEventTypeID()
	paramType := valuetype.NewParamTypeID()

	d := EventDescriptor{
		EventTypeID: eventType,
		DeviceID:    device,
		Params:      []valuetype.ParamDescriptor{{ParamTypeID: paramType, Operator: valuetype.OpEqual, Value: valuetype.NewInt(5)}},
	}

	matching := Event{
		EventTypeID: eventType,
		DeviceID:    device,
		Params:      map[valuetype.ParamTypeID]valuetype.TypedValue{paramType: valuetype.NewInt(5)},
		OccurredAt:  time.Now(),
	}
	assert.True(t, d.Matches(matching))

	wrongValue := matching
	wrongValue.Params = map[valuetype.ParamTypeID]valuetype.TypedValue{paramType: valuetype.NewInt(6)}
	assert.False(t, d.Matches(wrongValue))

	missingParam := matching
	missingParam.Params = map[valuetype.ParamTypeID]valuetype.TypedValue{}
	assert.False(t, d.Matches(missingParam))

	wrongDevice := matching
	wrongDevice.DeviceID = valuetype.NewDeviceID()
	assert.False(t, d.Matches(wrongDevice))
}

func TestEventDescriptor_Matches_InterfaceBound(t *testing.T) {
	d := EventDescriptor{Interface: "Light", EventName: "Toggled"}

	matching := Event{Interface: "Light", Name: "Toggled"}
	assert.True(t, d.Matches(matching))

	wrong := Event{Interface: "Light", Name: "Dimmed"}
	assert.False(t, d.Matches(wrong))
}

func TestEventDescriptor_Equals(t *testing.T) {
	device := valuetype.NewDeviceID()
	eventType := valuetype.NewEventTypeID()

	a := EventDescriptor{EventTypeID: eventType, DeviceID: device}
	b := EventDescriptor{EventTypeID: eventType, DeviceID: device}
	assert.True(t, a.Equals(b))

	b.DeviceID = valuetype.NewDeviceID()
	assert.False(t, a.Equals(b))

	c := EventDescriptor{Interface: "Light", EventName: "Toggled"}
	assert.False(t, a.Equals(c), "device-bound and interface-bound descriptors never match")
}
