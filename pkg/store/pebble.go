package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"chatd/pkg/logger"
	"chatd/pkg/models"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// Store is a pebble-backed conversation/message store. Messages are
// keyed with a sortable timestamp prefix so a prefix scan returns them
// in insertion order. Writes are serialized per conversation; reads may
// run concurrently.
type Store struct {
	db   *pebble.DB
	path string

	// seq reduces key collisions when multiple messages share the same
	// nanosecond timestamp.
	seq uint64

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	watch *registry
}

// Open opens (or creates) a pebble database at the given path.
func Open(path string) (*Store, error) {
	logger.Log.Info("opening_pebble_db", zap.String("path", path))
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Log.Error("pebble_open_failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	logger.Log.Info("pebble_opened", zap.String("path", path))
	return &Store{
		db:    db,
		path:  path,
		locks: make(map[string]*sync.Mutex),
		watch: newRegistry(),
	}, nil
}

// Close closes the underlying database and terminates all watch streams.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	s.watch.closeAll()
	if err := s.db.Close(); err != nil {
		return err
	}
	s.db = nil
	logger.Log.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and usable.
func (s *Store) Ready() bool {
	return s != nil && s.db != nil
}

// lockConversation returns the per-conversation write mutex, creating it
// on first use.
func (s *Store) lockConversation(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

var convSeq uint64

// genConversationID generates a unique conversation ID from the current
// UTC nanosecond timestamp and an atomic sequence number.
func genConversationID() string {
	n := time.Now().UTC().UnixNano()
	c := atomic.AddUint64(&convSeq, 1)
	return fmt.Sprintf("conv-%d-%d", n, c)
}

func metaKey(convID string) []byte {
	return []byte("conv:" + convID + ":meta")
}

func msgPrefix(convID string) []byte {
	return []byte("conv:" + convID + ":msg:")
}

// CreateConversation creates and persists a new conversation. The title
// may be empty; the orchestrator derives one from the first message.
func (s *Store) CreateConversation(title string) (models.Conversation, error) {
	if s.db == nil {
		return models.Conversation{}, fmt.Errorf("pebble not opened; call store.Open first")
	}
	now := time.Now().UTC().UnixNano()
	c := models.Conversation{
		ID:        genConversationID(),
		Title:     title,
		CreatedTS: now,
		UpdatedTS: now,
	}
	if err := s.putConversation(c); err != nil {
		return models.Conversation{}, err
	}
	conversationsCreated.Inc()
	logger.Log.Info("conversation_created", zap.String("conversation", c.ID))
	s.watch.publishConversations(s)
	return c, nil
}

func (s *Store) putConversation(c models.Conversation) error {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	if err := s.db.Set(metaKey(c.ID), b, pebble.Sync); err != nil {
		logger.Log.Error("save_conversation_failed", zap.String("conversation", c.ID), zap.Error(err))
		return err
	}
	return nil
}

// GetConversation returns the conversation metadata for the given ID.
func (s *Store) GetConversation(id string) (models.Conversation, error) {
	if s.db == nil {
		return models.Conversation{}, fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := s.db.Get(metaKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return models.Conversation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return models.Conversation{}, err
	}
	defer closer.Close()
	var c models.Conversation
	if err := json.Unmarshal(v, &c); err != nil {
		return models.Conversation{}, fmt.Errorf("invalid conversation metadata: %w", err)
	}
	return c, nil
}

// UpdateConversation overwrites the conversation metadata. The
// conversation must already exist.
func (s *Store) UpdateConversation(c models.Conversation) error {
	if s.db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	l := s.lockConversation(c.ID)
	l.Lock()
	defer l.Unlock()
	if _, err := s.GetConversation(c.ID); err != nil {
		return err
	}
	if err := s.putConversation(c); err != nil {
		return err
	}
	logger.Log.Info("conversation_updated", zap.String("conversation", c.ID))
	s.watch.publishConversations(s)
	return nil
}

// DeleteConversation removes the conversation and all of its messages in
// a single batch so no message is ever orphaned.
func (s *Store) DeleteConversation(id string) error {
	if s.db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	l := s.lockConversation(id)
	l.Lock()
	defer l.Unlock()
	b := s.db.NewBatch()
	defer b.Close()
	prefix := msgPrefix(id)
	if err := b.DeleteRange(prefix, keyUpperBound(prefix), nil); err != nil {
		return err
	}
	if err := b.Delete(metaKey(id), nil); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Log.Error("delete_conversation_failed", zap.String("conversation", id), zap.Error(err))
		return err
	}
	conversationsDeleted.Inc()
	logger.Log.Info("conversation_deleted", zap.String("conversation", id))
	s.watch.publishConversations(s)
	s.watch.publishMessages(s, id)
	return nil
}

// ListConversations returns all conversations, most recently updated
// first.
func (s *Store) ListConversations() ([]models.Conversation, error) {
	if s.db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := []byte("conv:")
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Conversation
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if !bytes.HasSuffix(iter.Key(), []byte(":meta")) {
			continue
		}
		var c models.Conversation
		if err := json.Unmarshal(iter.Value(), &c); err != nil {
			return nil, fmt.Errorf("invalid conversation metadata: %w", err)
		}
		out = append(out, c)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sortConversations(out)
	return out, nil
}

// SaveMessage appends a message to a conversation and bumps the
// conversation's updated timestamp.
func (s *Store) SaveMessage(convID string, m models.Message) error {
	if s.db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	l := s.lockConversation(convID)
	l.Lock()
	defer l.Unlock()
	if err := s.saveMessageLocked(convID, m); err != nil {
		return err
	}
	if err := s.touchLocked(convID); err != nil {
		return err
	}
	s.watch.publishMessages(s, convID)
	s.watch.publishConversations(s)
	return nil
}

// SaveMessages appends a batch of messages in order and bumps the
// conversation's updated timestamp once.
func (s *Store) SaveMessages(convID string, msgs []models.Message) error {
	if s.db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	if len(msgs) == 0 {
		return nil
	}
	l := s.lockConversation(convID)
	l.Lock()
	defer l.Unlock()
	for _, m := range msgs {
		if err := s.saveMessageLocked(convID, m); err != nil {
			return err
		}
	}
	if err := s.touchLocked(convID); err != nil {
		return err
	}
	s.watch.publishMessages(s, convID)
	s.watch.publishConversations(s)
	return nil
}

func (s *Store) saveMessageLocked(convID string, m models.Message) error {
	m.Conversation = convID
	if m.TS == 0 {
		m.TS = time.Now().UTC().UnixNano()
	}
	// Key format: conv:<id>:msg:<unix_nano_padded>-<seq>
	ts := time.Now().UTC().UnixNano()
	n := atomic.AddUint64(&s.seq, 1)
	key := fmt.Sprintf("conv:%s:msg:%020d-%06d", convID, ts, n)
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := s.db.Set([]byte(key), data, pebble.Sync); err != nil {
		logger.Log.Error("save_message_failed", zap.String("conversation", convID), zap.String("key", key), zap.Error(err))
		return err
	}
	messagesSaved.Inc()
	logger.Log.Info("message_saved", zap.String("conversation", convID), zap.String("msg_id", m.ID), zap.String("role", string(m.Role)))
	return nil
}

// touchLocked bumps the conversation's UpdatedTS. The conversation lock
// must be held.
func (s *Store) touchLocked(convID string) error {
	v, closer, err := s.db.Get(metaKey(convID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			// message saved against a conversation without metadata;
			// tolerate it the way the original app does
			return nil
		}
		return err
	}
	defer closer.Close()
	var c models.Conversation
	if err := json.Unmarshal(v, &c); err != nil {
		return fmt.Errorf("invalid conversation metadata: %w", err)
	}
	c.UpdatedTS = time.Now().UTC().UnixNano()
	return s.putConversation(c)
}

// ListMessagesSync returns all messages for a conversation in insertion
// order. The Sync suffix mirrors the watch-based read path: this is the
// point-in-time read the orchestrator uses.
func (s *Store) ListMessagesSync(convID string) ([]models.Message, error) {
	if s.db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := msgPrefix(convID)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("invalid message JSON: %w", err)
		}
		out = append(out, m)
	}
	return out, iter.Error()
}

// keyUpperBound returns the smallest key greater than every key with the
// given prefix.
func keyUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// sortConversations orders by most recent activity first.
func sortConversations(cs []models.Conversation) {
	sort.SliceStable(cs, func(i, j int) bool {
		return cs[i].UpdatedTS > cs[j].UpdatedTS
	})
}
