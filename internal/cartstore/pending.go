package cartstore

import (
	"context"

	"github.com/yungbote/storefront-backend/internal/domain/cart"
)

type opKind string

const (
	opAdd     opKind = "add"
	opChange  opKind = "change"
	opClear   opKind = "clear"
	opRefresh opKind = "refresh"
)

type op struct {
	kind opKind

	variantID string
	attrs     map[string]string
	// pendingKey is the provisional line key of an add, unique per store.
	pendingKey string
	key       string
	qty       int

	done   chan struct{}
	result cart.Snapshot
	err    error
}

func newOp(kind opKind) *op {
	return &op{kind: kind, done: make(chan struct{})}
}

func (o *op) finish(s cart.Snapshot, err error) {
	o.result = s
	o.err = err
	close(o.done)
}

// Pending tracks one queued mutation. It settles after the mutation has been
// reconciled against the backend, whatever the outcome; failures surface as
// a notice on the snapshot, not here.
type Pending struct {
	o *op
}

func (p Pending) Done() <-chan struct{} { return p.o.done }

// Wait blocks until the mutation settles and returns the snapshot published
// at that point. It returns ErrClosed when the store was torn down first.
func (p Pending) Wait(ctx context.Context) (cart.Snapshot, error) {
	select {
	case <-p.o.done:
		return p.o.result, p.o.err
	case <-ctx.Done():
		return cart.Snapshot{}, ctx.Err()
	}
}
