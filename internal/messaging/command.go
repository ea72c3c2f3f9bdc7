// Package messaging drives the presence and chat client.
//
// Outbound commands form a closed set of types implementing Command;
// Client.Dispatch handles each variant in one type switch. The transport
// is JSON frames over a websocket: every frame is {"type": ..., "payload":
// ...}. Inbound frames are forwarded verbatim as Inbound values.
package messaging

import (
	"encoding/json"
	"fmt"
)

// Command is an outbound request to the messaging client. The set of
// commands is closed: every implementation is declared in this file.
type Command interface {
	isCommand()
}

// Connect opens the connection and authenticates as JID.
type Connect struct {
	JID      string `json:"jid"`
	Password string `json:"password"`
}

// Disconnect ends the session and closes the connection.
type Disconnect struct{}

// SendMessage delivers Body to To. Type is "chat" or "groupchat".
type SendMessage struct {
	To   string `json:"to"`
	Type string `json:"type"`
	Body string `json:"body"`
}

// JoinRoom enters Room under Nick.
type JoinRoom struct {
	Room string `json:"room"`
	Nick string `json:"nick"`
}

// LeaveRoom leaves Room.
type LeaveRoom struct {
	Room string `json:"room"`
	Nick string `json:"nick"`
}

// ConfigureRoom applies room options, e.g. "persistent": "true".
type ConfigureRoom struct {
	Room    string            `json:"room"`
	Options map[string]string `json:"options"`
}

// SetAffiliation grants JID an affiliation ("owner", "member", "none")
// in Room.
type SetAffiliation struct {
	Room        string `json:"room"`
	JID         string `json:"jid"`
	Affiliation string `json:"affiliation"`
}

func (Connect) isCommand()        {}
func (Disconnect) isCommand()     {}
func (SendMessage) isCommand()    {}
func (JoinRoom) isCommand()       {}
func (LeaveRoom) isCommand()      {}
func (ConfigureRoom) isCommand()  {}
func (SetAffiliation) isCommand() {}

// Name returns the wire type of cmd.
func Name(cmd Command) string {
	switch cmd.(type) {
	case Connect:
		return "connect"
	case Disconnect:
		return "disconnect"
	case SendMessage:
		return "send-message"
	case JoinRoom:
		return "join-room"
	case LeaveRoom:
		return "leave-room"
	case ConfigureRoom:
		return "configure-room"
	case SetAffiliation:
		return "set-affiliation"
	default:
		return ""
	}
}

// frame is the wire envelope shared by both directions.
type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode renders cmd as a wire frame.
func Encode(cmd Command) ([]byte, error) {
	name := Name(cmd)
	if name == "" {
		return nil, fmt.Errorf("encode command: unknown command %T", cmd)
	}
	f := frame{Type: name}
	if _, empty := cmd.(Disconnect); !empty {
		payload, err := json.Marshal(cmd)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		f.Payload = payload
	}
	return json.Marshal(f)
}

// Inbound is a message received from the messaging server, e.g. a chat
// message or a presence update. Payload is forwarded verbatim.
type Inbound struct {
	Kind    string
	Payload json.RawMessage
}

// decodeInbound parses one inbound frame.
func decodeInbound(data []byte) (Inbound, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Inbound{}, fmt.Errorf("decode inbound: %w", err)
	}
	if f.Type == "" {
		return Inbound{}, fmt.Errorf("decode inbound: missing type")
	}
	return Inbound{Kind: f.Type, Payload: f.Payload}, nil
}
