package store

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"chatd/pkg/logger"
	"chatd/pkg/models"
)

// registry tracks live watch subscriptions. Each subscriber owns a
// buffered channel; on every relevant write the latest snapshot is
// pushed, replacing a stale unconsumed one so slow readers never block
// writers.
type registry struct {
	mu     sync.Mutex
	nextID uint64
	convs  map[uint64]chan []models.Conversation
	msgs   map[string]map[uint64]chan []models.Message
	closed bool
}

func newRegistry() *registry {
	return &registry{
		convs: make(map[uint64]chan []models.Conversation),
		msgs:  make(map[string]map[uint64]chan []models.Message),
	}
}

// WatchConversations returns a stream of conversation-list snapshots.
// The current snapshot is delivered immediately; the channel is closed
// when ctx is cancelled or the store closes.
func (s *Store) WatchConversations(ctx context.Context) <-chan []models.Conversation {
	ch := make(chan []models.Conversation, 1)
	s.watch.mu.Lock()
	if s.watch.closed {
		s.watch.mu.Unlock()
		close(ch)
		return ch
	}
	id := s.watch.nextID
	s.watch.nextID++
	s.watch.convs[id] = ch
	s.watch.mu.Unlock()

	if snap, err := s.ListConversations(); err == nil {
		deliver(s.watch, func() bool { _, ok := s.watch.convs[id]; return ok }, ch, snap)
	}

	go func() {
		<-ctx.Done()
		s.watch.mu.Lock()
		if c, ok := s.watch.convs[id]; ok {
			delete(s.watch.convs, id)
			close(c)
		}
		s.watch.mu.Unlock()
	}()
	return ch
}

// WatchMessages returns a stream of message-list snapshots for one
// conversation, starting with the current state.
func (s *Store) WatchMessages(ctx context.Context, convID string) <-chan []models.Message {
	ch := make(chan []models.Message, 1)
	s.watch.mu.Lock()
	if s.watch.closed {
		s.watch.mu.Unlock()
		close(ch)
		return ch
	}
	id := s.watch.nextID
	s.watch.nextID++
	subs, ok := s.watch.msgs[convID]
	if !ok {
		subs = make(map[uint64]chan []models.Message)
		s.watch.msgs[convID] = subs
	}
	subs[id] = ch
	s.watch.mu.Unlock()

	if snap, err := s.ListMessagesSync(convID); err == nil {
		deliver(s.watch, func() bool { _, ok := s.watch.msgs[convID][id]; return ok }, ch, snap)
	}

	go func() {
		<-ctx.Done()
		s.watch.mu.Lock()
		if subs, ok := s.watch.msgs[convID]; ok {
			if c, ok := subs[id]; ok {
				delete(subs, id)
				close(c)
			}
			if len(subs) == 0 {
				delete(s.watch.msgs, convID)
			}
		}
		s.watch.mu.Unlock()
	}()
	return ch
}

func (r *registry) publishConversations(s *Store) {
	if !r.hasConversationWatchers() {
		return
	}
	snap, err := s.ListConversations()
	if err != nil {
		logger.Log.Error("watch_snapshot_failed", zap.Error(err))
		return
	}
	// push under the lock so a concurrent unsubscribe cannot close a
	// channel mid-send; pushLatest never blocks
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	for _, ch := range r.convs {
		pushLatest(ch, snap)
	}
}

func (r *registry) publishMessages(s *Store, convID string) {
	if !r.hasMessageWatchers(convID) {
		return
	}
	snap, err := s.ListMessagesSync(convID)
	if err != nil {
		logger.Log.Error("watch_snapshot_failed", zap.String("conversation", convID), zap.Error(err))
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	for _, ch := range r.msgs[convID] {
		pushLatest(ch, snap)
	}
}

func (r *registry) hasConversationWatchers() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed && len(r.convs) > 0
}

func (r *registry) hasMessageWatchers(convID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed && len(r.msgs[convID]) > 0
}

// deliver pushes the initial snapshot under the registry lock so a
// concurrent unsubscribe or store close cannot close the channel
// mid-send. registered is evaluated while the lock is held.
func deliver[T any](r *registry, registered func() bool, ch chan T, v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || !registered() {
		return
	}
	pushLatest(ch, v)
}

// pushLatest delivers v, dropping the buffered stale snapshot if the
// subscriber has not consumed it yet.
func pushLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

// closeAll terminates every subscription; used on store close.
func (r *registry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id, ch := range r.convs {
		delete(r.convs, id)
		close(ch)
	}
	for convID, subs := range r.msgs {
		for id, ch := range subs {
			delete(subs, id)
			close(ch)
		}
		delete(r.msgs, convID)
	}
}
