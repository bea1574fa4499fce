package transport

import (
	"testing"

	"github.com/PayRpc/a2a-fabric/internal/valuetype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_MarshalUnmarshal_RoundTrip(t *testing.T) {
	params := valuetype.Object(map[string]valuetype.Value{
		"query": valuetype.String("weather"),
	})
	original := NewRequest("agent-a", "agent-b", "capability.invoke", params, NewStringID("req-1"))

	data, err := original.Marshal()
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, original.From, decoded.From)
	assert.Equal(t, original.To, decoded.To)
	assert.Equal(t, original.Method, decoded.Method)
	assert.Equal(t, original.MessageType, decoded.MessageType)
	assert.Equal(t, original.ID.String(), decoded.ID.String())

	q, ok := decoded.Params.Get("query")
	require.True(t, ok)
	s, ok := q.AsString()
	require.True(t, ok)
	assert.Equal(t, "weather", s)
}

func TestMessage_IsResponse(t *testing.T) {
	result := NewResult("agent-a", "agent-b", NewStringID("req-1"), valuetype.Bool(true))
	assert.True(t, result.IsResponse())

	errResp := NewError("agent-a", "agent-b", NewStringID("req-1"), -32000, "timeout", nil)
	assert.True(t, errResp.IsResponse())

	notif := NewNotification("agent-a", "agent-b", "heartbeat", valuetype.Null())
	assert.False(t, notif.IsResponse())
}

func TestRoute_ExceededMaxHops(t *testing.T) {
	r := Route{HopCount: 3, MaxHops: 3}
	assert.True(t, r.ExceededMaxHops())

	r2 := Route{HopCount: 2, MaxHops: 3}
	assert.False(t, r2.ExceededMaxHops())

	unlimited := Route{HopCount: 1000, MaxHops: 0}
	assert.False(t, unlimited.ExceededMaxHops())
}

func TestID_IsNull(t *testing.T) {
	var zero ID
	assert.True(t, zero.IsNull())

	id := NewStringID("abc")
	assert.False(t, id.IsNull())
}
