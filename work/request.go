package work

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/BranchIntl/gobroker/errors"
	"github.com/google/uuid"
)

// ReservedParam is the parameter name the wire protocol uses for the
// correlation id. Payloads may not define it themselves.
const ReservedParam = "id_num"

// ID is the opaque correlation token assigned to a request at creation
type ID string

// NewID returns a fresh 32 character hex token
func NewID() ID {
	u := uuid.New()
	return ID(hex.EncodeToString(u[:]))
}

func (id ID) String() string {
	return string(id)
}

// Result is what a worker hands back for a request
type Result struct {
	Data     []byte
	Hostname string
}

// Requester receives the outcome of a request. Implementations are called
// from the broker loop and must not block.
type Requester interface {
	Deliver(result Result)
	Fail(err error)
}

// WorkRequest is a unit of work waiting for, or assigned to, a worker.
// It is immutable once created.
type WorkRequest struct {
	id        ID
	payload   Payload
	requester Requester
	createdAt time.Time
}

// NewRequest creates a request with a freshly generated id
func NewRequest(payload Payload, requester Requester) (*WorkRequest, error) {
	return NewRequestWithID(NewID(), payload, requester)
}

// NewRequestWithID creates a request with a caller supplied id
func NewRequestWithID(id ID, payload Payload, requester Requester) (*WorkRequest, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty request id", errors.ErrInvalidPayload)
	}
	if requester == nil {
		return nil, errors.ErrNilRequester
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	return &WorkRequest{
		id:        id,
		payload:   payload.Clone(),
		requester: requester,
		createdAt: time.Now(),
	}, nil
}

// ID returns the correlation id
func (r *WorkRequest) ID() ID {
	return r.id
}

// Payload returns a copy of the request parameters
func (r *WorkRequest) Payload() Payload {
	return r.payload.Clone()
}

// Requester returns the handle results are delivered to
func (r *WorkRequest) Requester() Requester {
	return r.requester
}

// CreatedAt returns when the request was created
func (r *WorkRequest) CreatedAt() time.Time {
	return r.createdAt
}
