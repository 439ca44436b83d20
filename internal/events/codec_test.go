package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/facility-desk/internal/domain"
)

func TestDecodePayloadRestoresConcreteType(t *testing.T) {
	raw, err := EncodePayload(RequestStatusChangedPayload{
		OldStatus:   domain.StatusNew,
		NewStatus:   domain.StatusInProgress,
		RecipientID: 1,
		Audience:    AudienceCreator,
	})
	require.NoError(t, err)

	got, err := DecodePayload(EventRequestStatusChanged, raw)
	require.NoError(t, err)
	payload, ok := got.(RequestStatusChangedPayload)
	require.True(t, ok, "handlers type-assert on the value type, got %T", got)
	assert.Equal(t, domain.StatusInProgress, payload.NewStatus)
	assert.Equal(t, AudienceCreator, payload.Audience)
}

func TestDecodePayloadRejectsUnknownInput(t *testing.T) {
	_, err := DecodePayload(EventType("request_deleted"), []byte(`{}`))
	assert.Error(t, err)

	_, err = DecodePayload(EventRequestAssigned, []byte(`{"performer_id":`))
	assert.Error(t, err)
}
