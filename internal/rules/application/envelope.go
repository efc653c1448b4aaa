package application

import (
	"encoding/json"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/felixgeelhaar/meridian/internal/rules/domain"
	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

// DeviceEventEnvelope is the normalized shape a device-plugin boundary
// publishes: a CloudEvent whose type carries the EventTypeId, whose
// source carries the DeviceId, and whose data carries the typed params
// as a JSON object of paramTypeId → value.
type DeviceEventEnvelope struct {
	ce cloudevents.Event
}

// NewDeviceEventEnvelope wraps a raw event into a CloudEvent, ready to be
// handed to an eventbus or decoded back via ToEvent.
func NewDeviceEventEnvelope(e domain.Event) (DeviceEventEnvelope, error) {
	ce := cloudevents.NewEvent()
	ce.SetID(fmt.Sprintf("%s-%d", e.EventTypeID, e.OccurredAt.UnixNano()))
	ce.SetType(e.EventTypeID.String())
	ce.SetSource(e.DeviceID.String())
	ce.SetTime(e.OccurredAt)

	data := make(map[string]valuetype.TypedValue, len(e.Params))
	for k, v := range e.Params {
		data[k.String()] = v
	}
	if err := ce.SetData(cloudevents.ApplicationJSON, data); err != nil {
		return DeviceEventEnvelope{}, fmt.Errorf("encode device event: %w", err)
	}
	return DeviceEventEnvelope{ce: ce}, nil
}

// ToEvent decodes the envelope back into the engine's internal Event.
func (d DeviceEventEnvelope) ToEvent() (domain.Event, error) {
	eventType, err := valuetype.ParseEventTypeID(d.ce.Type())
	if err != nil {
		return domain.Event{}, fmt.Errorf("device event type: %w", err)
	}
	deviceID, err := valuetype.ParseDeviceID(d.ce.Source())
	if err != nil {
		return domain.Event{}, fmt.Errorf("device event source: %w", err)
	}

	var raw map[string]valuetype.TypedValue
	if len(d.ce.Data()) > 0 {
		if err := json.Unmarshal(d.ce.Data(), &raw); err != nil {
			return domain.Event{}, fmt.Errorf("device event data: %w", err)
		}
	}
	params := make(map[valuetype.ParamTypeID]valuetype.TypedValue, len(raw))
	for k, v := range raw {
		pid, err := valuetype.ParseParamTypeID(k)
		if err != nil {
			return domain.Event{}, fmt.Errorf("device event param id: %w", err)
		}
		params[pid] = v
	}

	occurredAt := d.ce.Time()
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	return domain.Event{
		EventTypeID: eventType,
		DeviceID:    deviceID,
		Params:      params,
		OccurredAt:  occurredAt,
	}, nil
}
