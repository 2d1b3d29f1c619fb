package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/yungbote/storefront-backend/internal/cartstore"
	"github.com/yungbote/storefront-backend/internal/commerce"
	"github.com/yungbote/storefront-backend/internal/domain/cart"
	"github.com/yungbote/storefront-backend/internal/platform/logger"
	"github.com/yungbote/storefront-backend/internal/realtime"
	"github.com/yungbote/storefront-backend/internal/realtime/bus"
)

const (
	defaultIdleTTL         = 30 * time.Minute
	defaultJanitorInterval = time.Minute
	defaultPublishBuffer   = 1024
	storeIOTimeout         = 5 * time.Second
)

type RegistryOptions struct {
	Client  commerce.Client
	Catalog cartstore.Catalog
	Tokens  TokenStore
	// Bus receives every snapshot any store publishes. Optional.
	Bus      bus.Bus
	Observer cartstore.Observer
	Logger   *logger.Logger

	IdleTTL         time.Duration
	JanitorInterval time.Duration
	MutationTimeout time.Duration
	QueueSize       int
	PublishBuffer   int
}

type entry struct {
	store    *cartstore.Store
	lastUsed time.Time
	holds    int
}

// Registry owns one cart store per live session. Stores are created on first
// use and torn down once idle with no open streams.
type Registry struct {
	opts RegistryOptions
	log  *logger.Logger
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
	group   singleflight.Group

	events chan realtime.Message
}

func NewRegistry(opts RegistryOptions) (*Registry, error) {
	if opts.Client == nil {
		return nil, errors.New("commerce client required")
	}
	if opts.Tokens == nil {
		opts.Tokens = NewMemoryStore(0)
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = defaultIdleTTL
	}
	if opts.JanitorInterval <= 0 {
		opts.JanitorInterval = defaultJanitorInterval
	}
	if opts.PublishBuffer <= 0 {
		opts.PublishBuffer = defaultPublishBuffer
	}
	return &Registry{
		opts:    opts,
		log:     opts.Logger.With("component", "SessionRegistry"),
		now:     time.Now,
		entries: map[string]*entry{},
		events:  make(chan realtime.Message, opts.PublishBuffer),
	}, nil
}

// Get returns the session's store, creating and hydrating it on first use.
// Concurrent first requests for one session share a single creation.
func (r *Registry) Get(ctx context.Context, sessionID string) (*cartstore.Store, error) {
	if st, ok, err := r.lookup(sessionID); ok || err != nil {
		return st, err
	}

	v, err, _ := r.group.Do(sessionID, func() (interface{}, error) {
		if st, ok, err := r.lookup(sessionID); ok || err != nil {
			return st, err
		}
		return r.create(context.WithoutCancel(ctx), sessionID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*cartstore.Store), nil
}

func (r *Registry) lookup(sessionID string) (*cartstore.Store, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false, cartstore.ErrClosed
	}
	e, ok := r.entries[sessionID]
	if !ok {
		return nil, false, nil
	}
	e.lastUsed = r.now()
	return e.store, true, nil
}

func (r *Registry) create(ctx context.Context, sessionID string) (*cartstore.Store, error) {
	tctx, cancel := context.WithTimeout(ctx, storeIOTimeout)
	token, err := r.opts.Tokens.Get(tctx, sessionID)
	cancel()
	if err != nil && !errors.Is(err, ErrTokenNotFound) {
		// A lost token only costs the shopper their previous cart.
		r.log.Warn("cart token lookup failed", "session_id", sessionID, "error", err)
	}

	st := cartstore.New(cartstore.Options{
		Client:          r.opts.Client,
		Token:           token,
		SessionID:       sessionID,
		Catalog:         r.opts.Catalog,
		Logger:          r.opts.Logger,
		Publisher:       sessionPublisher{r: r, sessionID: sessionID},
		Observer:        r.opts.Observer,
		OnTokenChange:   func(tok string) { r.persistToken(sessionID, tok) },
		MutationTimeout: r.opts.MutationTimeout,
		QueueSize:       r.opts.QueueSize,
	})
	if err := st.Init(ctx, nil); err != nil {
		st.Teardown()
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		st.Teardown()
		return nil, cartstore.ErrClosed
	}
	r.entries[sessionID] = &entry{store: st, lastUsed: r.now()}
	r.log.Debug("cart store created", "session_id", sessionID, "sessions", len(r.entries))
	return st, nil
}

func (r *Registry) persistToken(sessionID, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeIOTimeout)
	defer cancel()
	if err := r.opts.Tokens.Put(ctx, sessionID, token); err != nil {
		r.log.Warn("persist cart token failed", "session_id", sessionID, "error", err)
	}
}

// Hold keeps the session's store alive while a stream is open. The returned
// release func is idempotent.
func (r *Registry) Hold(sessionID string) func() {
	r.mu.Lock()
	if e, ok := r.entries[sessionID]; ok {
		e.holds++
	}
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if e, ok := r.entries[sessionID]; ok && e.holds > 0 {
				e.holds--
				e.lastUsed = r.now()
			}
		})
	}
}

// Evict tears down the session's store, if any. The persisted token stays so
// the next request resumes the same remote cart.
func (r *Registry) Evict(sessionID string) {
	r.mu.Lock()
	e, ok := r.entries[sessionID]
	delete(r.entries, sessionID)
	r.mu.Unlock()
	if ok {
		e.store.Teardown()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep tears down stores idle for longer than IdleTTL and returns how many
// were removed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.opts.IdleTTL)
	var idle []*cartstore.Store
	r.mu.Lock()
	for id, e := range r.entries {
		if e.holds == 0 && e.lastUsed.Before(cutoff) {
			idle = append(idle, e.store)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()
	for _, st := range idle {
		st.Teardown()
	}
	if len(idle) > 0 {
		r.log.Debug("evicted idle cart stores", "count", len(idle))
	}
	return len(idle)
}

// Run pumps published snapshots to the bus and runs the idle janitor until
// ctx ends.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.JanitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep()
		case msg := <-r.events:
			r.forward(ctx, msg)
		}
	}
}

func (r *Registry) forward(ctx context.Context, msg realtime.Message) {
	if r.opts.Bus == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, storeIOTimeout)
	defer cancel()
	if err := r.opts.Bus.Publish(pctx, msg); err != nil {
		r.log.Warn("publish cart snapshot failed", "session_id", msg.Channel, "error", err)
	}
}

// Close tears down every store. Get fails with cartstore.ErrClosed after.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	stores := make([]*cartstore.Store, 0, len(r.entries))
	for id, e := range r.entries {
		stores = append(stores, e.store)
		delete(r.entries, id)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, st := range stores {
		wg.Add(1)
		go func(st *cartstore.Store) {
			defer wg.Done()
			st.Teardown()
		}(st)
	}
	wg.Wait()
}

// sessionPublisher enqueues snapshots for Run. It is called under the store
// lock, so it never blocks; a full queue drops the snapshot.
type sessionPublisher struct {
	r         *Registry
	sessionID string
}

func (p sessionPublisher) Publish(s cart.Snapshot) {
	msg, err := realtime.SnapshotMessage(p.sessionID, s)
	if err != nil {
		p.r.log.Warn("encode cart snapshot failed", "session_id", p.sessionID, "error", err)
		return
	}
	select {
	case p.r.events <- msg:
	default:
		p.r.log.Warn("dropping cart snapshot; publish queue full", "session_id", p.sessionID)
	}
}
