package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

// wire protocol. one frame per websocket message, json encoded.
// message bodies are utf-8 json end to end.

type FrameType string

const (
	FrameTypeConnect     FrameType = "CONNECT"
	FrameTypeConnected   FrameType = "CONNECTED"
	FrameTypeSubscribe   FrameType = "SUBSCRIBE"
	FrameTypeUnsubscribe FrameType = "UNSUBSCRIBE"
	FrameTypeSend        FrameType = "SEND"
	FrameTypeMessage     FrameType = "MESSAGE"
	FrameTypeError       FrameType = "ERROR"
)

type Frame struct {
	Type    FrameType         `json:"type"`
	Topic   Topic             `json:"topic,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// the connect handshake carries the identity as connection time metadata,
// not per message
func ConnectFrame(auth *ClientAuth) *Frame {
	headers := map[string]string{}
	if auth != nil {
		if byJwt, err := ParseByJwtUnverified(auth.ByJwt); err == nil && byJwt.UserId != "" {
			headers["user-identity"] = byJwt.UserId
		}
		if auth.ByJwt != "" {
			headers["bearer-token"] = auth.ByJwt
		}
		if auth.RefreshJwt != "" {
			headers["refresh-token"] = auth.RefreshJwt
		}
		if (auth.InstanceId != Id{}) {
			headers["instance-id"] = auth.InstanceId.String()
		}
	}
	return &Frame{
		Type:    FrameTypeConnect,
		Headers: headers,
	}
}

func SubscribeFrame(topic Topic) *Frame {
	return &Frame{
		Type:  FrameTypeSubscribe,
		Topic: topic,
	}
}

func UnsubscribeFrame(topic Topic) *Frame {
	return &Frame{
		Type:  FrameTypeUnsubscribe,
		Topic: topic,
	}
}

func SendFrame(topic Topic, payload any) (*Frame, error) {
	if topic == "" {
		return nil, errors.New("send frame requires a topic")
	}
	var body json.RawMessage
	switch v := payload.(type) {
	case json.RawMessage:
		body = v
	case []byte:
		body = json.RawMessage(v)
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = b
	}
	if !json.Valid(body) {
		return nil, errors.New("send payload must be valid json")
	}
	return &Frame{
		Type:  FrameTypeSend,
		Topic: topic,
		Body:  body,
	}, nil
}

func EncodeFrame(frame *Frame) ([]byte, error) {
	return json.Marshal(frame)
}

func RequireEncodeFrame(frame *Frame) []byte {
	b, err := EncodeFrame(frame)
	if err != nil {
		panic(err)
	}
	return b
}

func DecodeFrame(b []byte) (*Frame, error) {
	frame := &Frame{}
	if err := json.Unmarshal(b, frame); err != nil {
		return nil, err
	}
	switch frame.Type {
	case FrameTypeConnect, FrameTypeConnected, FrameTypeSubscribe,
		FrameTypeUnsubscribe, FrameTypeSend, FrameTypeMessage, FrameTypeError:
	default:
		return nil, fmt.Errorf("unknown frame type: %q", frame.Type)
	}
	if frame.Type == FrameTypeMessage {
		if frame.Topic == "" {
			return nil, errors.New("message frame requires a topic")
		}
		if len(frame.Body) == 0 || !json.Valid(frame.Body) {
			return nil, errors.New("message frame requires a json body")
		}
	}
	return frame, nil
}
