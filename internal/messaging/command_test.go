package messaging

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allCommands holds one value of every command variant, in an order that
// can be dispatched on one connection.
var allCommands = []Command{
	Connect{JID: "ann@roll2d6.org", Password: "pw"},
	SendMessage{To: "table@rooms.roll2d6.org", Type: "groupchat", Body: "hi"},
	JoinRoom{Room: "table@rooms.roll2d6.org", Nick: "ann"},
	LeaveRoom{Room: "table@rooms.roll2d6.org", Nick: "ann"},
	ConfigureRoom{Room: "table@rooms.roll2d6.org", Options: map[string]string{"persistent": "true"}},
	SetAffiliation{Room: "table@rooms.roll2d6.org", JID: "bo@roll2d6.org", Affiliation: "member"},
	Disconnect{},
}

func TestName_CoversEveryCommand(t *testing.T) {
	seen := map[string]bool{}
	for _, cmd := range allCommands {
		name := Name(cmd)
		require.NotEmpty(t, name, "%T has no wire name", cmd)
		assert.False(t, seen[name], "duplicate wire name %s", name)
		seen[name] = true
	}
	assert.Len(t, seen, 7)
}

func TestEncode(t *testing.T) {
	data, err := Encode(JoinRoom{Room: "r", Nick: "ann"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"join-room","payload":{"room":"r","nick":"ann"}}`, string(data))

	data, err = Encode(Disconnect{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"disconnect"}`, string(data))
}

func TestEncode_Nil(t *testing.T) {
	_, err := Encode(nil)
	assert.Error(t, err)
}

func TestDecodeInbound(t *testing.T) {
	msg, err := decodeInbound([]byte(`{"type":"chat","payload":{"from":"bo","body":"yo"}}`))
	require.NoError(t, err)
	assert.Equal(t, "chat", msg.Kind)

	var body map[string]string
	require.NoError(t, json.Unmarshal(msg.Payload, &body))
	assert.Equal(t, "yo", body["body"])

	_, err = decodeInbound([]byte(`{"payload":{}}`))
	assert.Error(t, err)
	_, err = decodeInbound([]byte(`nope`))
	assert.Error(t, err)
}
