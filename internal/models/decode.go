package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Layouts accepted for timestamps without a zone offset; such values are read as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
}

// ParseTimestamp reads an RFC 3339 timestamp, or a zone-less ISO 8601 one as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

type timestamp struct{ time.Time }

func (t *timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp must be a string")
	}
	v, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = v
	return nil
}

func (t *timestamp) ptr() *time.Time {
	if t == nil {
		return nil
	}
	v := t.Time
	return &v
}

// UnmarshalJSON accepts zone-less start and end times as UTC.
func (in *EventInput) UnmarshalJSON(b []byte) error {
	type plain EventInput
	aux := struct {
		*plain
		StartTime *timestamp `json:"start_time"`
		EndTime   *timestamp `json:"end_time"`
	}{plain: (*plain)(in)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if aux.StartTime != nil {
		in.StartTime = aux.StartTime.Time
	}
	if aux.EndTime != nil {
		in.EndTime = aux.EndTime.Time
	}
	return nil
}

// UnmarshalJSON rejects keys that are not patchable fields and accepts zone-less times as UTC.
func (p *EventPatch) UnmarshalJSON(b []byte) error {
	type plain EventPatch
	aux := struct {
		*plain
		StartTime *timestamp `json:"start_time"`
		EndTime   *timestamp `json:"end_time"`
	}{plain: (*plain)(p)}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&aux); err != nil {
		return err
	}
	p.StartTime = aux.StartTime.ptr()
	p.EndTime = aux.EndTime.ptr()
	return nil
}
