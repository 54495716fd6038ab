package work

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/BranchIntl/gobroker/errors"
)

// Param is one named request parameter
type Param struct {
	Name  string
	Value interface{}
}

// Payload is an ordered mapping of parameter name to value. Order is kept
// through JSON encoding so workers see parameters as they were given.
type Payload []Param

// Get returns the value for name
func (p Payload) Get(name string) (interface{}, bool) {
	for _, param := range p {
		if param.Name == name {
			return param.Value, true
		}
	}
	return nil, false
}

// Names returns the parameter names in order
func (p Payload) Names() []string {
	names := make([]string, len(p))
	for i, param := range p {
		names[i] = param.Name
	}
	return names
}

// With returns a copy of p with name set to value, appended if new
func (p Payload) With(name string, value interface{}) Payload {
	out := p.Clone()
	for i := range out {
		if out[i].Name == name {
			out[i].Value = value
			return out
		}
	}
	return append(out, Param{Name: name, Value: value})
}

// Clone returns a shallow copy
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	copy(out, p)
	return out
}

// Validate checks names are present, unique and not reserved
func (p Payload) Validate() error {
	seen := make(map[string]struct{}, len(p))
	for _, param := range p {
		if param.Name == "" {
			return fmt.Errorf("%w: empty parameter name", errors.ErrInvalidPayload)
		}
		if param.Name == ReservedParam {
			return fmt.Errorf("%w: parameter name %q is reserved", errors.ErrInvalidPayload, ReservedParam)
		}
		if _, dup := seen[param.Name]; dup {
			return fmt.Errorf("%w: duplicate parameter %q", errors.ErrInvalidPayload, param.Name)
		}
		seen[param.Name] = struct{}{}
	}
	return nil
}

// MarshalJSON encodes the payload as a JSON object in parameter order
func (p Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, param := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(param.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(param.Value)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", param.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping document order. Numbers are
// decoded as json.Number.
func (p *Payload) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("%w: payload must be a JSON object", errors.ErrInvalidPayload)
	}

	out := Payload{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: unexpected token %v", errors.ErrInvalidPayload, tok)
		}
		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("parameter %q: %w", name, err)
		}
		out = append(out, Param{Name: name, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*p = out
	return nil
}
