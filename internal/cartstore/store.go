// Package cartstore keeps one shopper's cart in step with the remote commerce
// backend.
//
// Mutations are applied to the local view immediately and queued. A single
// worker reconciles them in order: it performs the remote call, refetches the
// cart, and replaces the authoritative state with what the backend reported.
// Queued mutations are re-projected on top of every new authoritative state, so
// consumers always see the backend's cart plus whatever is still in flight.
package cartstore

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/yungbote/storefront-backend/internal/commerce"
	"github.com/yungbote/storefront-backend/internal/domain/cart"
	"github.com/yungbote/storefront-backend/internal/platform/logger"
)

var ErrClosed = errors.New("cartstore: store closed")

const (
	defaultMutationTimeout = 8 * time.Second
	defaultQueueSize       = 64
	subscriberBuffer       = 8

	msgMutationFailed = "We couldn't update your cart. Please try again."
	msgSyncFailed     = "We couldn't refresh your cart. Showing the last known state."
	msgQueueFull      = "Too many cart updates at once. Please wait a moment."
)

// Catalog supplies list prices and display data for optimistic adds.
type Catalog interface {
	PriceHint(variantID string) (cart.PriceHint, bool)
}

// Publisher receives every snapshot the store publishes. It is called with
// the store's lock held and must not block or call back into the store.
type Publisher interface {
	Publish(s cart.Snapshot)
}

// Observer is told how each reconcile went. outcome is one of "ok",
// "mutation_failed", "timeout" or "sync_failed".
type Observer interface {
	ObserveReconcile(op, outcome string, d time.Duration)
}

type Options struct {
	Client commerce.Client
	// Token is the remote cart token to start from. Empty lets the backend
	// assign one.
	Token     string
	SessionID string

	Catalog   Catalog
	Logger    *logger.Logger
	Publisher Publisher
	Observer  Observer

	// OnTokenChange is called from the worker, outside the lock, whenever the
	// backend reports a different cart token.
	OnTokenChange func(token string)

	MutationTimeout time.Duration
	QueueSize       int

	now func() time.Time
}

type pendingLine struct {
	variantID string
	attrs     map[string]string
}

type Store struct {
	client    commerce.Client
	catalog   Catalog
	log       *logger.Logger
	publisher Publisher
	observer  Observer
	onToken   func(string)
	timeout   time.Duration
	queueSize int
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	token         string
	authoritative cart.Snapshot
	view          cart.Snapshot
	isOpen        bool
	notice        *cart.Notice
	version       uint64
	updatedAt     time.Time

	queue    []*op
	inflight *op
	wake     chan struct{}
	pending  map[string]pendingLine
	nextKey  uint64

	subs    map[int]chan cart.Snapshot
	nextSub int

	started    bool
	closed     bool
	workerDone chan struct{}
}

func New(opts Options) *Store {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	timeout := opts.MutationTimeout
	if timeout <= 0 {
		timeout = defaultMutationTimeout
	}
	qs := opts.QueueSize
	if qs <= 0 {
		qs = defaultQueueSize
	}
	now := opts.now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		client:        opts.Client,
		catalog:       opts.Catalog,
		log:           log.With("component", "cartstore", "session_id", opts.SessionID),
		publisher:     opts.Publisher,
		observer:      opts.Observer,
		onToken:       opts.OnTokenChange,
		timeout:       timeout,
		queueSize:     qs,
		now:           now,
		ctx:           ctx,
		cancel:        cancel,
		token:         opts.Token,
		authoritative: cart.Empty(),
		view:          cart.Empty(),
		wake:          make(chan struct{}, 1),
		pending:       map[string]pendingLine{},
		subs:          map[int]chan cart.Snapshot{},
		workerDone:    make(chan struct{}),
	}
	return s
}

// Init hydrates the store and starts its worker. A non-nil initial result
// (a cart embedded in the page payload) is used as is; otherwise the cart is
// fetched once. A failed fetch leaves an empty cart with a notice.
func (s *Store) Init(ctx context.Context, initial *commerce.Result) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	token := s.token
	s.mu.Unlock()

	var (
		res commerce.Result
		err error
	)
	if initial != nil {
		res = *initial
	} else {
		fctx, cancel := context.WithTimeout(ctx, s.timeout)
		res, err = s.client.FetchSnapshot(fctx, token)
		cancel()
	}

	s.mu.Lock()
	rotated := false
	if err != nil {
		s.log.Warn("initial cart fetch failed", "error", err)
		s.setNotice(cart.NoticeSyncFailed, string(opRefresh), msgSyncFailed)
	} else {
		rotated = s.adoptLocked(res)
	}
	s.rebuildLocked()
	s.publishLocked()
	tok := s.token
	s.mu.Unlock()

	if rotated {
		s.tokenChanged(tok)
	}
	go s.run()
	return nil
}

// Teardown stops the worker. Queued mutations settle with ErrClosed and an
// in-flight remote call is cancelled. Subscriber channels are closed. Safe to
// call more than once.
func (s *Store) Teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	drained := s.queue
	s.queue = nil
	for _, o := range drained {
		o.finish(s.publicLocked(), ErrClosed)
	}
	started := s.started
	s.cancel()
	close(s.wake)
	s.mu.Unlock()

	if started {
		<-s.workerDone
	}

	s.mu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()
	if len(drained) > 0 {
		s.log.Debug("cart store torn down with queued mutations", "dropped", len(drained))
	}
}

// Snapshot returns a copy of what consumers currently see.
func (s *Store) Snapshot() cart.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publicLocked()
}

// Token is the remote cart token as last reported by the backend.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Subscribe delivers the current snapshot and then every change. Slow
// subscribers miss intermediate snapshots but always get the latest one.
func (s *Store) Subscribe() (<-chan cart.Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan cart.Snapshot, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.publicLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

// AddToCart opens the cart and queues an add. The drawer opens whether or not
// the add later succeeds.
func (s *Store) AddToCart(variantID string, qty int, attrs map[string]string) Pending {
	o := newOp(opAdd)
	o.variantID = variantID
	o.qty = qty
	o.attrs = copyAttrs(attrs)
	return s.enqueue(o, true)
}

// UpdateQuantity sets a line's quantity. qty <= 0 removes the line.
func (s *Store) UpdateQuantity(key string, qty int) Pending {
	if qty < 0 {
		qty = 0
	}
	o := newOp(opChange)
	o.key = key
	o.qty = qty
	return s.enqueue(o, false)
}

func (s *Store) RemoveFromCart(key string) Pending {
	return s.UpdateQuantity(key, 0)
}

func (s *Store) ClearCart() Pending {
	return s.enqueue(newOp(opClear), false)
}

// Refresh queues a reconcile without a mutation, for carts changed elsewhere.
func (s *Store) Refresh() Pending {
	return s.enqueue(newOp(opRefresh), false)
}

func (s *Store) Open()   { s.setOpen(func(bool) bool { return true }) }
func (s *Store) Close()  { s.setOpen(func(bool) bool { return false }) }
func (s *Store) Toggle() { s.setOpen(func(v bool) bool { return !v }) }

func (s *Store) DismissNotice() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.notice == nil {
		return
	}
	s.notice = nil
	s.publishLocked()
}

func (s *Store) setOpen(f func(bool) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	next := f(s.isOpen)
	if next == s.isOpen {
		return
	}
	s.isOpen = next
	s.publishLocked()
}

func (s *Store) enqueue(o *op, open bool) Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		o.finish(s.publicLocked(), ErrClosed)
		return Pending{o: o}
	}
	if open {
		s.isOpen = true
	}
	if len(s.queue) >= s.queueSize {
		s.setNotice(cart.NoticeMutationFailed, string(o.kind), msgQueueFull)
		s.publishLocked()
		o.finish(s.publicLocked(), nil)
		return Pending{o: o}
	}
	if o.kind == opAdd && o.variantID != "" && o.qty > 0 {
		s.nextKey++
		o.pendingKey = cart.PendingKeyPrefix + strconv.FormatUint(s.nextKey, 10)
		s.pending[o.pendingKey] = pendingLine{variantID: o.variantID, attrs: o.attrs}
	}
	s.queue = append(s.queue, o)
	s.rebuildLocked()
	s.publishLocked()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return Pending{o: o}
}

func (s *Store) run() {
	defer close(s.workerDone)
	for {
		o, ok := s.next()
		if !ok {
			return
		}
		s.reconcile(o)
	}
}

// next blocks until an op is queued or the store closes.
func (s *Store) next() (*op, bool) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, false
		}
		if len(s.queue) > 0 {
			o := s.queue[0]
			s.queue = s.queue[1:]
			s.inflight = o
			s.mu.Unlock()
			return o, true
		}
		s.mu.Unlock()
		if _, ok := <-s.wake; !ok {
			return nil, false
		}
	}
}

func (s *Store) reconcile(o *op) {
	start := s.now()
	s.mu.Lock()
	token := s.token
	key := s.resolveKeyLocked(s.authoritative, o.key)
	s.mu.Unlock()

	var (
		mutRes commerce.Result
		mutErr error
		mutOK  bool
	)
	if o.kind != opRefresh {
		mctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		mutRes, mutErr = s.mutate(mctx, o, token, key)
		cancel()
		if mutErr == nil {
			mutOK = true
			if mutRes.Token != "" {
				token = mutRes.Token
			}
		} else if errors.Is(mutErr, context.DeadlineExceeded) {
			s.log.Warn("cart mutation timed out, forcing refetch", "op", string(o.kind), "timeout", s.timeout)
		} else {
			s.log.Warn("cart mutation failed", "op", string(o.kind), "error", mutErr)
		}
	}

	fctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	fetched, fetchErr := s.client.FetchSnapshot(fctx, token)
	cancel()
	if fetchErr != nil {
		s.log.Warn("cart refetch failed", "op", string(o.kind), "error", fetchErr)
	}

	s.mu.Lock()
	if s.closed {
		s.inflight = nil
		snap := s.publicLocked()
		s.mu.Unlock()
		o.finish(snap, ErrClosed)
		return
	}

	before := s.token
	adopted := true
	switch {
	case fetchErr == nil:
		s.adoptLocked(fetched)
	case mutOK && !mutRes.Partial:
		s.adoptLocked(mutRes)
	default:
		adopted = false
		if mutOK && mutRes.Token != "" {
			s.token = mutRes.Token
		}
	}
	rotated := s.token != before

	switch {
	case mutErr != nil:
		s.setNotice(cart.NoticeMutationFailed, string(o.kind), msgMutationFailed)
	case !adopted:
		s.setNotice(cart.NoticeSyncFailed, string(o.kind), msgSyncFailed)
	case fetchErr == nil:
		s.notice = nil
	}

	s.inflight = nil
	s.forgetPendingLocked()
	s.rebuildLocked()
	s.publishLocked()
	snap := s.publicLocked()
	tok := s.token
	s.mu.Unlock()

	if rotated {
		s.tokenChanged(tok)
	}
	if s.observer != nil {
		s.observer.ObserveReconcile(string(o.kind), outcome(mutErr, adopted), s.now().Sub(start))
	}
	o.finish(snap, nil)
}

func outcome(mutErr error, adopted bool) string {
	switch {
	case errors.Is(mutErr, context.DeadlineExceeded):
		return "timeout"
	case mutErr != nil:
		return "mutation_failed"
	case !adopted:
		return "sync_failed"
	default:
		return "ok"
	}
}

func (s *Store) mutate(ctx context.Context, o *op, token, key string) (commerce.Result, error) {
	switch o.kind {
	case opAdd:
		return s.client.AddLine(ctx, token, commerce.AddLine{VariantID: o.variantID, Quantity: o.qty, Attributes: o.attrs})
	case opChange:
		return s.client.SetLineQuantity(ctx, token, key, o.qty)
	case opClear:
		return s.client.Clear(ctx, token)
	default:
		return commerce.Result{}, nil
	}
}

// adoptLocked replaces the authoritative cart wholesale and reports whether
// the token changed.
func (s *Store) adoptLocked(res commerce.Result) bool {
	snap := res.Cart.Clone()
	snap.Recompute()
	if snap.Items == nil {
		snap.Items = []cart.LineItem{}
	}
	s.authoritative = snap
	tok := res.Token
	if tok == "" {
		tok = snap.Token
	}
	if tok != "" && tok != s.token {
		s.token = tok
		return true
	}
	return false
}

// rebuildLocked recomputes the view as the authoritative cart with every
// unreconciled mutation projected on top, in queue order.
func (s *Store) rebuildLocked() {
	v := s.authoritative.Clone()
	if s.inflight != nil {
		v = s.projectLocked(v, s.inflight)
	}
	for _, o := range s.queue {
		v = s.projectLocked(v, o)
	}
	s.view = v
}

func (s *Store) projectLocked(v cart.Snapshot, o *op) cart.Snapshot {
	switch o.kind {
	case opAdd:
		var hint cart.PriceHint
		if s.catalog != nil {
			hint, _ = s.catalog.PriceHint(o.variantID)
		}
		return cart.ProjectAdd(v, o.pendingKey, o.variantID, o.qty, o.attrs, hint)
	case opChange:
		return cart.ProjectSetQuantity(v, s.resolveKeyLocked(v, o.key), o.qty)
	case opClear:
		return cart.ProjectClear(v)
	default:
		return v
	}
}

// resolveKeyLocked maps a provisional "pending:" key onto the real line once
// the add behind it has been reconciled.
func (s *Store) resolveKeyLocked(v cart.Snapshot, key string) string {
	if key == "" || v.Find(key) >= 0 {
		return key
	}
	pl, ok := s.pending[key]
	if !ok {
		return key
	}
	for _, it := range v.Items {
		if it.VariantID == pl.variantID && cart.SameAttributes(it.Attributes, pl.attrs) {
			return it.Key
		}
	}
	return key
}

// forgetPendingLocked drops provisional key mappings that no queued op can
// refer to anymore.
func (s *Store) forgetPendingLocked() {
	if len(s.pending) == 0 {
		return
	}
	live := make(map[string]bool, len(s.queue))
	for _, o := range s.queue {
		switch o.kind {
		case opAdd:
			live[o.pendingKey] = true
		case opChange:
			live[o.key] = true
		}
	}
	for k := range s.pending {
		if !live[k] {
			delete(s.pending, k)
		}
	}
}

func (s *Store) setNotice(kind cart.NoticeKind, opName, msg string) {
	s.notice = &cart.Notice{Kind: kind, Op: opName, Message: msg, At: s.now()}
}

func (s *Store) syncingLocked() bool {
	return s.inflight != nil || len(s.queue) > 0
}

func (s *Store) publicLocked() cart.Snapshot {
	out := s.view.Clone()
	out.IsOpen = s.isOpen
	out.IsSyncing = s.syncingLocked()
	if s.notice != nil {
		n := *s.notice
		out.Notice = &n
	} else {
		out.Notice = nil
	}
	out.Token = s.token
	out.Version = s.version
	out.UpdatedAt = s.updatedAt
	return out
}

func (s *Store) publishLocked() {
	s.version++
	s.updatedAt = s.now()
	snap := s.publicLocked()
	for _, ch := range s.subs {
		deliverLatest(ch, snap)
	}
	if s.publisher != nil {
		s.publisher.Publish(snap)
	}
}

// deliverLatest never blocks: when the buffer is full the oldest snapshot is
// dropped.
func deliverLatest(ch chan cart.Snapshot, snap cart.Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (s *Store) tokenChanged(tok string) {
	if s.onToken != nil && tok != "" {
		s.onToken(tok)
	}
}

func copyAttrs(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
