package room

import (
	"encoding/json"
	"fmt"
)

// PayloadDefaults holds the constant parts of every request body.
type PayloadDefaults struct {
	Message          string `yaml:"message"`
	Locale           string `yaml:"locale"`
	EventName        string `yaml:"event_name"`
	TenantID         string `yaml:"tenant_id"`
	IsInternal       bool   `yaml:"is_internal"`
	SendNotification bool   `yaml:"send_notification"`
}

// DefaultPayload returns the payload constants used when config leaves them empty.
func DefaultPayload() PayloadDefaults {
	return PayloadDefaults{
		Message:          "load test message",
		Locale:           "en-US",
		EventName:        "chat.message.created",
		TenantID:         "loadtest",
		SendNotification: true,
	}
}

// Payload is the JSON body posted by each iteration.
type Payload struct {
	RoomID           string `json:"roomId"`
	UserID           string `json:"userId"`
	PatientID        string `json:"patientId"`
	Message          string `json:"message"`
	IsInternal       bool   `json:"isInternal"`
	SendNotification bool   `json:"sendNotification"`
	Locale           string `json:"locale"`
	EventName        string `json:"eventName"`
	TenantID         string `json:"tenantId"`
}

// Builder produces request bodies for a room.
type Builder struct {
	defaults PayloadDefaults
}

// NewBuilder creates a Builder, filling empty constants from DefaultPayload.
func NewBuilder(d PayloadDefaults) *Builder {
	def := DefaultPayload()
	if d.Message == "" {
		d.Message = def.Message
	}
	if d.Locale == "" {
		d.Locale = def.Locale
	}
	if d.EventName == "" {
		d.EventName = def.EventName
	}
	if d.TenantID == "" {
		d.TenantID = def.TenantID
	}
	return &Builder{defaults: d}
}

// Build returns the payload for r. The iteration number is stamped into the
// message so server-side logs can be correlated with the report.
func (b *Builder) Build(r Room, iteration int64) Payload {
	return Payload{
		RoomID:           r.RoomID,
		UserID:           r.UserID,
		PatientID:        r.PatientID,
		Message:          fmt.Sprintf("%s #%d", b.defaults.Message, iteration),
		IsInternal:       b.defaults.IsInternal,
		SendNotification: b.defaults.SendNotification,
		Locale:           b.defaults.Locale,
		EventName:        b.defaults.EventName,
		TenantID:         b.defaults.TenantID,
	}
}

// Encode builds and marshals the payload.
func (b *Builder) Encode(r Room, iteration int64) ([]byte, error) {
	return json.Marshal(b.Build(r, iteration))
}
