package ws

import "encoding/json"

// Frame types sent by clients.
const (
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
	frameAck         = "ack"
	frameResume      = "resume"
	frameCommand     = "cmd"
	framePing        = "ping"
)

// clientFrame is one JSON message read from a socket.
type clientFrame struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Channel string `json:"channel,omitempty"`
	Seq     int64  `json:"seq,omitempty"`
	// Since is optional on resume; when absent replay starts after the
	// user's last acknowledged sequence.
	Since *int64          `json:"since,omitempty"`
	Op    string          `json:"op,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// serverFrame is one JSON message written to a socket.
type serverFrame struct {
	Type    string      `json:"type"`
	ID      string      `json:"id,omitempty"`
	Channel string      `json:"channel,omitempty"`
	Ack     string      `json:"ack,omitempty"`
	Seq     int64       `json:"seq,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func eventFrame(channel string, seq int64, data interface{}) serverFrame {
	return serverFrame{Type: "event", Channel: channel, Seq: seq, Data: data}
}

func ackFrame(ack, channel string) serverFrame {
	return serverFrame{Type: "ack", Ack: ack, Channel: channel}
}

func errorFrame(id, code, message string) serverFrame {
	return serverFrame{Type: "error", ID: id, Code: code, Message: message}
}

func responseFrame(id string, data interface{}) serverFrame {
	return serverFrame{Type: "response", ID: id, Data: data}
}

// seqOf reads the sequence number the bus stamps on published events.
func seqOf(event map[string]interface{}) int64 {
	switch v := event["seq"].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}
