package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies a safety event. The set is open: unknown kinds are kept
// as sent (normalized to lower case).
type Kind string

const (
	KindFall  Kind = "fall"
	KindPanic Kind = "panic"
)

// UnknownAcceleration is stored when the device sends no acceleration tag.
const UnknownAcceleration = "unknown"

// kindAliases maps device firmware spellings to canonical kinds.
var kindAliases = map[string]Kind{
	"queda":  KindFall,
	"panico": KindPanic,
	"pânico": KindPanic,
}

// EventData is the part of an event served to the dashboard.
type EventData struct {
	Kind              Kind    `json:"kind"`
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	AccelerationLabel string  `json:"acceleration_label"`
}

// Event is one persisted safety event.
type Event struct {
	EventID   string `json:"event_id"`
	Timestamp int64  `json:"timestamp"` // seconds since epoch, assigned at acceptance
	DeviceID  string `json:"device_id,omitempty"`
	EventData
	CreatedAt time.Time `json:"created_at"`
}

// IsFall reports whether the event is a detected fall.
func (e EventData) IsFall() bool { return e.Kind == KindFall }

// IsPanic reports whether the event is a manual panic trigger.
func (e EventData) IsPanic() bool { return e.Kind == KindPanic }

// ReportEventRequest is the inbound write payload, shared by the HTTP and
// MQTT ingestion paths. tipo_evento and aceleracao are the field names used
// by the first firmware generation.
type ReportEventRequest struct {
	Kind              string          `json:"kind"`
	TipoEvento        string          `json:"tipo_evento"`
	Latitude          *float64        `json:"latitude"`
	Longitude         *float64        `json:"longitude"`
	AccelerationLabel json.RawMessage `json:"acceleration_label"`
	Aceleracao        json.RawMessage `json:"aceleracao"`
	DeviceID          string          `json:"device_id,omitempty"`
}

// ErrValidation is the sentinel wrapped by every ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Normalize validates the request and returns the canonical payload.
func (r ReportEventRequest) Normalize() (EventData, error) {
	rawKind := r.Kind
	if strings.TrimSpace(rawKind) == "" {
		rawKind = r.TipoEvento
	}
	kind, err := NormalizeKind(rawKind)
	if err != nil {
		return EventData{}, err
	}

	if r.Latitude == nil {
		return EventData{}, &ValidationError{Field: "latitude", Reason: "is required"}
	}
	if r.Longitude == nil {
		return EventData{}, &ValidationError{Field: "longitude", Reason: "is required"}
	}
	if *r.Latitude < -90 || *r.Latitude > 90 {
		return EventData{}, &ValidationError{Field: "latitude", Reason: "must be between -90 and 90"}
	}
	if *r.Longitude < -180 || *r.Longitude > 180 {
		return EventData{}, &ValidationError{Field: "longitude", Reason: "must be between -180 and 180"}
	}

	raw := r.AccelerationLabel
	if isJSONAbsent(raw) {
		raw = r.Aceleracao
	}
	label, err := parseAccelerationLabel(raw)
	if err != nil {
		return EventData{}, err
	}

	return EventData{
		Kind:              kind,
		Latitude:          *r.Latitude,
		Longitude:         *r.Longitude,
		AccelerationLabel: label,
	}, nil
}

// NormalizeKind trims and lower-cases s and resolves firmware aliases.
func NormalizeKind(s string) (Kind, error) {
	k := strings.ToLower(strings.TrimSpace(s))
	if k == "" {
		return "", &ValidationError{Field: "kind", Reason: "is required"}
	}
	if alias, ok := kindAliases[k]; ok {
		return alias, nil
	}
	return Kind(k), nil
}

func isJSONAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// parseAccelerationLabel accepts a JSON string or number.
func parseAccelerationLabel(raw json.RawMessage) (string, error) {
	if isJSONAbsent(raw) {
		return UnknownAcceleration, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return UnknownAcceleration, nil
		}
		return s, nil
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		return n.String(), nil
	}

	return "", &ValidationError{Field: "acceleration_label", Reason: "must be a string or number"}
}

// Ingestion sources, used in logs and the "source" metric label.
const (
	SourceHTTP = "http"
	SourceMQTT = "mqtt"
)
