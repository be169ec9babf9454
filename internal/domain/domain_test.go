package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterparty(t *testing.T) {
	inbound := Message{FromNumber: "whatsapp:+1555", ToNumber: "whatsapp:+1999", Direction: DirectionInbound}
	assert.Equal(t, "whatsapp:+1555", inbound.Counterparty())

	outbound := Message{FromNumber: "whatsapp:+1999", ToNumber: "whatsapp:+1555", Direction: DirectionOutbound}
	assert.Equal(t, "whatsapp:+1555", outbound.Counterparty())
}

func TestConnectedEventJSON(t *testing.T) {
	data, err := json.Marshal(ConnectedEvent("abc-123"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"connected","clientId":"abc-123"}`, string(data))
}

func TestNewMessageEventJSON(t *testing.T) {
	msg := &Message{ID: 1, FromNumber: "whatsapp:+1555", ToNumber: "whatsapp:+1999", Body: "Hi", Direction: DirectionInbound}
	data, err := json.Marshal(NewMessageEvent(msg))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "new_message", decoded["type"])
	assert.NotContains(t, decoded, "clientId")

	inner, ok := decoded["message"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Hi", inner["body"])
}
