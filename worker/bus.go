package worker

import (
	"context"
	"sync"

	"github.com/benbjohnson/dcpa/distributed"
	"github.com/pkg/errors"
)

// ErrUnknownBlock is returned when a message is addressed to a block that
// has no mailbox on the bus.
var ErrUnknownBlock = errors.New("unknown block")

// Bus delivers encoded messages between block workers. Mailboxes are
// unbounded so a sender never blocks. The bus counts messages in flight:
// a message is in flight from Send until the receiver calls Done, and the
// bus becomes idle once no message is in flight.
type Bus struct {
	mu       sync.Mutex
	boxes    map[string]*mailbox
	inflight int
	sent     map[distributed.MessageType]int

	idle     chan struct{}
	idleOnce sync.Once
}

type mailbox struct {
	queue  [][]byte
	notify chan struct{}
}

// NewBus returns a bus with one mailbox per block id.
func NewBus(ids ...string) *Bus {
	b := &Bus{
		boxes: make(map[string]*mailbox, len(ids)),
		sent:  make(map[distributed.MessageType]int),
		idle:  make(chan struct{}),
	}
	for _, id := range ids {
		b.boxes[id] = &mailbox{notify: make(chan struct{}, 1)}
	}
	return b
}

// Send encodes msg and appends it to the mailbox of block to.
func (b *Bus) Send(to string, msg *distributed.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	box, ok := b.boxes[to]
	if !ok {
		return errors.Wrapf(ErrUnknownBlock, "send %s to %s", msg, to)
	}
	box.queue = append(box.queue, data)
	b.inflight++
	b.sent[msg.Type]++

	select {
	case box.notify <- struct{}{}:
	default:
	}
	return nil
}

// Receive waits for the next message addressed to block id.
func (b *Bus) Receive(ctx context.Context, id string) (*distributed.Message, error) {
	b.mu.Lock()
	box, ok := b.boxes[id]
	b.mu.Unlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownBlock, "receive %s", id)
	}

	for {
		b.mu.Lock()
		if len(box.queue) > 0 {
			data := box.queue[0]
			box.queue[0] = nil
			box.queue = box.queue[1:]
			b.mu.Unlock()
			return distributed.DecodeMessage(data)
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-box.notify:
		}
	}
}

// Done marks one received message as handled.
func (b *Bus) Done() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.inflight--
	if b.inflight < 0 {
		panic("bus: Done called more often than Send")
	} else if b.inflight == 0 {
		b.idleOnce.Do(func() { close(b.idle) })
	}
}

// Idle returns a channel that is closed once every sent message has been
// handled.
func (b *Bus) Idle() <-chan struct{} {
	return b.idle
}

// SentN returns the number of messages of the given type sent so far.
func (b *Bus) SentN(typ distributed.MessageType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sent[typ]
}
