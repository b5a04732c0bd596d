package ws

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Message interface for all client frames
type Message interface {
	GetType() string
	Process(s *Session) error
}

// SerializedMessage is the wire format wrapper
type SerializedMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Frame is an outgoing server frame
type Frame struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// ErrorResponse is sent when a frame cannot be processed
type ErrorResponse struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// Server frame types
const (
	TypeFeed           = "feed"
	TypeUnread         = "unread"
	TypeConfirmDelete  = "confirm_delete"
	TypeUploadProgress = "upload_progress"
	TypeSendResult     = "send_result"
	TypeError          = "error"
	TypePong           = "pong"
)

func ToJson(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

func FromJson(jsonBytes []byte, msg Message) error {
	if len(jsonBytes) == 0 {
		return nil
	}
	return json.Unmarshal(jsonBytes, msg)
}

func CreateMessage(msgType string, typeRegistry map[string]reflect.Type) (Message, error) {
	msgTypeReflect, ok := typeRegistry[msgType]
	if !ok {
		return nil, fmt.Errorf("unknown message type: %s", msgType)
	}

	instance := reflect.New(msgTypeReflect).Interface()
	return instance.(Message), nil
}
