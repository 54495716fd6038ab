package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BranchIntl/gobroker/errors"
	"github.com/BranchIntl/gobroker/work"
)

// Format is the payload encoding used on every transport
const Format = "json"

type envelope struct {
	Type      Type            `json:"type"`
	Hostname  *string         `json:"hostname,omitempty"`
	IDNum     json.RawMessage `json:"id_num,omitempty"`
	ImageData *string         `json:"image_data,omitempty"`
}

// Decode parses a worker message. Every failure is a *errors.ProtocolError
// wrapping either ErrUnknownMessageType or ErrMalformedMessage, so callers
// can reject the message and carry on.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.NewProtocolError("", fmt.Errorf("%w: %v", errors.ErrMalformedMessage, err))
	}

	switch env.Type {
	case TypeReady:
		if env.Hostname == nil {
			return nil, missingField(env.Type, "hostname")
		}
		return Ready{Hostname: *env.Hostname}, nil

	case TypeOutput:
		if len(env.IDNum) == 0 {
			return nil, missingField(env.Type, "id_num")
		}
		id, err := parseID(env.IDNum)
		if err != nil {
			return nil, errors.NewProtocolError(string(env.Type), err)
		}
		if env.ImageData == nil {
			return nil, missingField(env.Type, "image_data")
		}
		data, err := base64.StdEncoding.DecodeString(*env.ImageData)
		if err != nil {
			return nil, errors.NewProtocolError(string(env.Type),
				fmt.Errorf("%w: image_data: %v", errors.ErrMalformedMessage, err))
		}
		if env.Hostname == nil {
			return nil, missingField(env.Type, "hostname")
		}
		return Output{ID: id, Data: data, Hostname: *env.Hostname}, nil

	case TypeGoodbye:
		return Goodbye{}, nil

	case "":
		return nil, errors.NewProtocolError("", fmt.Errorf("%w: missing type", errors.ErrUnknownMessageType))

	default:
		return nil, errors.NewProtocolError(string(env.Type), errors.ErrUnknownMessageType)
	}
}

// Encode serializes a worker message
func Encode(msg Message) ([]byte, error) {
	env := envelope{Type: msg.Type()}

	switch m := msg.(type) {
	case Ready:
		env.Hostname = &m.Hostname
	case Output:
		idJSON, err := json.Marshal(string(m.ID))
		if err != nil {
			return nil, err
		}
		encoded := base64.StdEncoding.EncodeToString(m.Data)
		env.IDNum = idJSON
		env.ImageData = &encoded
		env.Hostname = &m.Hostname
	case Goodbye:
	default:
		return nil, errors.NewProtocolError(string(msg.Type()), errors.ErrUnknownMessageType)
	}

	return json.Marshal(env)
}

// EncodeDispatch builds the payload sent to a worker: the request parameters
// in order followed by the correlation id.
func EncodeDispatch(id work.ID, payload work.Payload) ([]byte, error) {
	if _, ok := payload.Get(work.ReservedParam); ok {
		return nil, fmt.Errorf("%w: payload already defines %s", errors.ErrInvalidPayload, work.ReservedParam)
	}
	params := append(payload.Clone(), work.Param{Name: work.ReservedParam, Value: string(id)})
	data, err := json.Marshal(params)
	if err != nil {
		return nil, errors.NewProtocolError("DISPATCH", fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err))
	}
	return data, nil
}

// DecodeDispatch is the worker side of EncodeDispatch
func DecodeDispatch(data []byte) (work.ID, work.Payload, error) {
	var params work.Payload
	if err := json.Unmarshal(data, &params); err != nil {
		return "", nil, errors.NewProtocolError("DISPATCH", fmt.Errorf("%w: %v", errors.ErrMalformedMessage, err))
	}

	var id work.ID
	out := make(work.Payload, 0, len(params))
	for _, p := range params {
		if p.Name != work.ReservedParam {
			out = append(out, p)
			continue
		}
		switch v := p.Value.(type) {
		case string:
			id = work.ID(v)
		case json.Number:
			id = work.ID(v.String())
		default:
			return "", nil, errors.NewProtocolError("DISPATCH",
				fmt.Errorf("%w: id_num has type %T", errors.ErrMalformedMessage, p.Value))
		}
	}
	if id == "" {
		return "", nil, missingField("DISPATCH", "id_num")
	}
	return id, out, nil
}

// parseID accepts the correlation id as a JSON string or number
func parseID(raw json.RawMessage) (work.ID, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", fmt.Errorf("%w: id_num: %v", errors.ErrMalformedMessage, err)
		}
		if s == "" {
			return "", fmt.Errorf("%w: id_num is empty", errors.ErrMalformedMessage)
		}
		return work.ID(s), nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return "", fmt.Errorf("%w: id_num must be a string or number", errors.ErrMalformedMessage)
	}
	id := strings.TrimSpace(n.String())
	if id == "" {
		return "", fmt.Errorf("%w: id_num is empty", errors.ErrMalformedMessage)
	}
	return work.ID(id), nil
}

func missingField(t Type, field string) error {
	return errors.NewProtocolError(string(t), fmt.Errorf("%w: missing %s", errors.ErrMalformedMessage, field))
}
