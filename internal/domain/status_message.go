/**
 * @description
 * This file defines the canonical status message pushed to subscribed clients.
 * A StatusMessage is derived deterministically from a StatusEvent by the
 * normalizer and is never mutated afterwards. The wire envelope is
 * {"eventType": ..., "data": {"prn": ..., "status": ..., <fields>, "timestamp": ...}},
 * which is the exact shape the browser client renders from.
 *
 * @notes
 * - Fields is an ordered list rather than a map so that the serialized data
 *   object has a stable key order across processes.
 */

package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// Field is one event-specific key/value pair carried inside the data object.
type Field struct {
	Key   string
	Value interface{}
}

// StatusMessage is the normalized, transport-agnostic event shape.
type StatusMessage struct {
	Reference string
	EventType string
	Status    string
	Fields    []Field
	Timestamp time.Time
}

// Envelope serializes the message into the client push envelope. Key order in
// the data object is fixed: prn, status, event-specific fields, timestamp.
func (m StatusMessage) Envelope() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"eventType":`)
	if err := writeJSONValue(&buf, m.EventType); err != nil {
		return nil, err
	}
	buf.WriteString(`,"data":{"prn":`)
	if err := writeJSONValue(&buf, m.Reference); err != nil {
		return nil, err
	}
	buf.WriteString(`,"status":`)
	if err := writeJSONValue(&buf, m.Status); err != nil {
		return nil, err
	}
	for _, f := range m.Fields {
		buf.WriteByte(',')
		if err := writeJSONValue(&buf, f.Key); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeJSONValue(&buf, f.Value); err != nil {
			return nil, err
		}
	}
	buf.WriteString(`,"timestamp":`)
	if err := writeJSONValue(&buf, m.Timestamp); err != nil {
		return nil, err
	}
	buf.WriteString(`}}`)
	return buf.Bytes(), nil
}

func writeJSONValue(buf *bytes.Buffer, v interface{}) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(encoded)
	return nil
}

// AuditRecord is the durable trace of an audit-worthy status message.
// Records are append-only; there is no read or update path in this service.
type AuditRecord struct {
	Reference       string    `json:"prn"`
	SerializedEvent []byte    `json:"serialized_event"`
	RecordedAt      time.Time `json:"recorded_at"`
}
