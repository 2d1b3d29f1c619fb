package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/yungbote/storefront-backend/internal/realtime"
)

var ErrClosed = errors.New("bus closed")

// localBus delivers in process, synchronously. It serves single-instance
// deployments and tests.
type localBus struct {
	mu         sync.RWMutex
	forwarders map[int]func(realtime.Message)
	next       int
	closed     bool
}

func NewLocalBus() Bus {
	return &localBus{forwarders: map[int]func(realtime.Message){}}
}

func (b *localBus) Publish(ctx context.Context, msg realtime.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for _, f := range b.forwarders {
		f(msg)
	}
	return nil
}

func (b *localBus) StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error {
	if onMsg == nil {
		return errors.New("onMsg callback required")
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	id := b.next
	b.next++
	b.forwarders[id] = onMsg
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.forwarders, id)
		b.mu.Unlock()
	}()
	return nil
}

func (b *localBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.forwarders = map[int]func(realtime.Message){}
	return nil
}
