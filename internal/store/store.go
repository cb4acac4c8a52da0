// Package store holds the authoritative in-memory set of conversations.
//
// All mutations are funnelled through a single goroutine that owns the
// collection. Readers never touch that collection; they load an
// immutable snapshot that is republished after every mutation, so a
// reader can never observe a half-applied ReplaceAll.
package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/capitalize-ai/admin-chat/internal/model"
	"github.com/capitalize-ai/admin-chat/pkg/logger"
	"github.com/capitalize-ai/admin-chat/pkg/metrics"
)

// ErrClosed is returned by mutations issued after Close.
var ErrClosed = errors.New("conversation store closed")

// Stamp is a value of the store's logical clock. Every mutation advances
// the clock by one.
type Stamp uint64

// Predicate selects messages for MarkRead.
type Predicate func(model.Message) bool

type entry struct {
	conv model.Conversation
	// stamp is the clock value of the last wholesale write.
	stamp Stamp
	// pushed is set when the last wholesale write came from MergeOne.
	pushed bool
}

type snapshot struct {
	version Stamp
	convs   []model.Conversation
}

type op struct {
	kind  string
	apply func(*state) int
	reply chan int
}

// state is owned by the mutation loop.
type state struct {
	order []int64
	byID  map[int64]*entry
	clock Stamp
}

// Store is the single owner of the conversation collection.
type Store struct {
	ops  chan op
	done chan struct{}
	stop sync.Once
	wg   sync.WaitGroup

	snap  atomic.Pointer[snapshot]
	clock atomic.Uint64

	subMu sync.Mutex
	subs  map[int]chan struct{}
	subID int

	logger *logger.Logger
}

// New creates a store and starts its mutation loop. Close releases it.
func New(log *logger.Logger) *Store {
	s := &Store{
		ops:    make(chan op),
		done:   make(chan struct{}),
		subs:   make(map[int]chan struct{}),
		logger: logger.OrNop(log).Component("store"),
	}
	s.snap.Store(&snapshot{})

	s.wg.Add(1)
	go s.loop(&state{byID: make(map[int64]*entry)})

	return s
}

// Close stops the mutation loop. Mutations issued afterwards return
// ErrClosed and leave the last snapshot in place. Close is idempotent.
func (s *Store) Close() {
	s.stop.Do(func() {
		close(s.done)
		s.wg.Wait()

		s.subMu.Lock()
		for id, ch := range s.subs {
			close(ch)
			delete(s.subs, id)
		}
		s.subMu.Unlock()
	})
}

func (s *Store) loop(st *state) {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case o := <-s.ops:
			// Close may have raced the send; teardown wins.
			select {
			case <-s.done:
				return
			default:
			}

			st.clock++
			s.clock.Store(uint64(st.clock))
			n := o.apply(st)
			s.publish(st)
			metrics.StoreMutationsTotal.WithLabelValues(o.kind).Inc()

			o.reply <- n
		}
	}
}

// submit hands fn to the mutation loop and waits for it to be applied.
func (s *Store) submit(ctx context.Context, kind string, fn func(*state) int) (int, error) {
	o := op{kind: kind, apply: fn, reply: make(chan int, 1)}

	select {
	case <-s.done:
		return 0, ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	case s.ops <- o:
	}

	select {
	case n := <-o.reply:
		return n, nil
	case <-s.done:
		return 0, ErrClosed
	}
}

func (s *Store) publish(st *state) {
	convs := make([]model.Conversation, 0, len(st.order))
	for _, id := range st.order {
		convs = append(convs, st.byID[id].conv)
	}
	s.snap.Store(&snapshot{version: st.clock, convs: convs})
	metrics.StoreConversations.Set(float64(len(convs)))
	s.notify()
}

// Stamp returns the current clock value. A bulk fetch takes a stamp
// before issuing its request and passes it to ReplaceAllSince.
func (s *Store) Stamp() Stamp {
	return Stamp(s.clock.Load())
}

// ReplaceAll installs a bulk batch in arrival order.
func (s *Store) ReplaceAll(ctx context.Context, convs []model.Conversation) error {
	return s.replace(ctx, convs, nil)
}

// ReplaceAllSince installs a bulk batch whose request was issued at
// since. Conversations written by MergeOne after since are newer than
// the batch and are kept, whether or not the batch mentions them.
func (s *Store) ReplaceAllSince(ctx context.Context, since Stamp, convs []model.Conversation) error {
	return s.replace(ctx, convs, &since)
}

func (s *Store) replace(ctx context.Context, convs []model.Conversation, since *Stamp) error {
	batch := dedupe(convs)

	skipped, err := s.submit(ctx, "replace_all", func(st *state) int {
		newerThanBatch := func(e *entry) bool {
			return since != nil && e.pushed && e.stamp > *since
		}

		next := make(map[int64]*entry, len(batch))
		order := make([]int64, 0, len(batch))
		skipped := 0

		for _, c := range batch {
			order = append(order, c.ID)

			if old, ok := st.byID[c.ID]; ok {
				// Messages are never removed, so a batch that knows fewer
				// of them than the store is stale for this conversation.
				if newerThanBatch(old) || old.conv.LastMessageID() > c.LastMessageID() {
					next[c.ID] = old
					skipped++
					continue
				}
			}
			next[c.ID] = &entry{conv: c, stamp: st.clock}
		}

		for _, id := range st.order {
			if _, ok := next[id]; ok {
				continue
			}
			if old := st.byID[id]; newerThanBatch(old) {
				next[id] = old
				order = append(order, id)
				skipped++
			}
		}

		st.byID = next
		st.order = order
		return skipped
	})
	if err != nil {
		return err
	}

	if skipped > 0 {
		metrics.StoreStaleSkipsTotal.Add(float64(skipped))
		s.logger.Debug("kept newer conversations over bulk batch", zap.Int("kept", skipped))
	}
	return nil
}

// dedupe clones convs keeping the first position and the last value of
// every ID.
func dedupe(convs []model.Conversation) []model.Conversation {
	pos := make(map[int64]int, len(convs))
	out := make([]model.Conversation, 0, len(convs))
	for _, c := range convs {
		if i, ok := pos[c.ID]; ok {
			out[i] = c.Clone()
			continue
		}
		pos[c.ID] = len(out)
		out = append(out, c.Clone())
	}
	return out
}

// MergeOne inserts conv, or replaces the stored conversation with the
// same ID field for field.
func (s *Store) MergeOne(ctx context.Context, conv model.Conversation) error {
	c := conv.Clone()

	_, err := s.submit(ctx, "merge_one", func(st *state) int {
		if _, ok := st.byID[c.ID]; !ok {
			st.order = append(st.order, c.ID)
		}
		st.byID[c.ID] = &entry{conv: c, stamp: st.clock, pushed: true}
		return 1
	})
	return err
}

// MarkRead sets Read on every message of the conversation that matches
// pred and returns how many messages changed. An unknown ID is a no-op.
func (s *Store) MarkRead(ctx context.Context, conversationID int64, pred Predicate) (int, error) {
	return s.submit(ctx, "mark_read", func(st *state) int {
		e, ok := st.byID[conversationID]
		if !ok {
			return 0
		}

		// Snapshots share message slices, so write a fresh one.
		msgs := make([]model.Message, len(e.conv.MessageList))
		changed := 0
		for i, m := range e.conv.MessageList {
			if !m.Read && pred(m) {
				m.Read = true
				changed++
			}
			msgs[i] = m
		}
		if changed == 0 {
			return 0
		}

		conv := e.conv
		conv.MessageList = msgs
		st.byID[conversationID] = &entry{conv: conv, stamp: e.stamp, pushed: e.pushed}
		return changed
	})
}

// Snapshot returns a point-in-time copy of every conversation in store
// order. The caller owns the returned slice.
func (s *Store) Snapshot() []model.Conversation {
	snap := s.snap.Load()
	out := make([]model.Conversation, len(snap.convs))
	for i := range snap.convs {
		out[i] = snap.convs[i].Clone()
	}
	return out
}

// Get returns a copy of one conversation.
func (s *Store) Get(id int64) (model.Conversation, bool) {
	for _, c := range s.snap.Load().convs {
		if c.ID == id {
			return c.Clone(), true
		}
	}
	return model.Conversation{}, false
}

// Len returns the number of conversations in the latest snapshot.
func (s *Store) Len() int {
	return len(s.snap.Load().convs)
}

// Version returns the clock value of the latest snapshot.
func (s *Store) Version() Stamp {
	return s.snap.Load().version
}

// Subscribe returns a channel that receives a signal after every
// mutation. Signals are coalesced: a slow reader sees at least one signal
// after the latest change. The channel is closed when ctx ends or the
// store is closed.
func (s *Store) Subscribe(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)

	s.subMu.Lock()
	select {
	case <-s.done:
		s.subMu.Unlock()
		close(ch)
		return ch
	default:
	}
	id := s.subID
	s.subID++
	s.subs[id] = ch
	s.subMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		s.unsubscribe(id)
	}()

	return ch
}

func (s *Store) unsubscribe(id int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
