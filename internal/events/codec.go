package events

import (
	"encoding/json"
	"fmt"
)

// EncodePayload serialises an event payload for storage.
func EncodePayload(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", payload, err)
	}
	return raw, nil
}

// DecodePayload restores the typed payload stored for eventType.
func DecodePayload(eventType EventType, raw []byte) (any, error) {
	switch eventType {
	case EventRequestCreated:
		return decode[RequestCreatedPayload](raw)
	case EventRequestStatusChanged:
		return decode[RequestStatusChangedPayload](raw)
	case EventRequestAssigned:
		return decode[RequestAssignedPayload](raw)
	case EventRequestCommented:
		return decode[RequestCommentedPayload](raw)
	}
	return nil, fmt.Errorf("unknown event type %q", eventType)
}

func decode[T any](raw []byte) (any, error) {
	var payload T
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode %T: %w", payload, err)
	}
	return payload, nil
}
