package distributed

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// MessageType distinguishes forward from backward messages.
type MessageType string

const (
	// PostCondition messages carry a summary of what is reachable at the
	// sender's block exit and travel forward.
	PostCondition MessageType = "post"

	// ErrorCondition messages carry a condition that, conjoined with the
	// rest of the path, reaches an error location. They travel backward.
	ErrorCondition MessageType = "error"
)

// Payload keys.
const (
	FormulaKey = "predicate"
	SSAKey     = "predicate.ssa"
	PTSKey     = "predicate.pts"
)

// Payload is the opaque key/value content of a message.
type Payload map[string]string

// Message is the unit of communication between block workers.
type Message struct {
	ID     string      `yaml:"id"`
	Type   MessageType `yaml:"type"`
	Sender string      `yaml:"sender"`

	// CFA node the message refers to: the receiver's entry node for
	// post-conditions, the sender's entry node for error conditions.
	Target int `yaml:"target"`

	Payload Payload `yaml:"payload,omitempty"`

	// Sender's precision in the shape produced by SerializePrecision.
	Precision interface{} `yaml:"precision,omitempty"`

	// Blocks an error condition passed through, most recent first.
	Trace []string `yaml:"trace,omitempty"`

	// Number of blocks an error condition traveled.
	Hops int `yaml:"hops,omitempty"`
}

// NewMessage returns a new message with a fresh id.
func NewMessage(typ MessageType, sender string, target int, payload Payload) *Message {
	return &Message{
		ID:      uuid.NewString(),
		Type:    typ,
		Sender:  sender,
		Target:  target,
		Payload: payload,
	}
}

func (m *Message) String() string {
	return fmt.Sprintf("%s[%s %s->N%d]", m.Type, m.ID, m.Sender, m.Target)
}

// Encode returns the wire encoding of the message.
func (m *Message) Encode() ([]byte, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, errors.Wrapf(err, "encode message %s", m.ID)
	}
	return data, nil
}

// DecodeMessage parses the wire encoding of a message.
func DecodeMessage(data []byte) (*Message, error) {
	var m Message
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "decode message")
	}
	switch m.Type {
	case PostCondition, ErrorCondition:
	default:
		return nil, errors.Errorf("decode message %s: unknown type %q", m.ID, m.Type)
	}
	return &m, nil
}
