package retention

import (
	"context"
	"testing"
	"time"

	"chatd/pkg/config"
	"chatd/pkg/models"
	"chatd/pkg/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func backdate(t *testing.T, s *store.Store, c models.Conversation, age time.Duration) {
	t.Helper()
	c.UpdatedTS = time.Now().UTC().Add(-age).UnixNano()
	if err := s.UpdateConversation(c); err != nil {
		t.Fatalf("UpdateConversation: %v", err)
	}
}

func TestRunOncePurgesOnlyStaleConversations(t *testing.T) {
	s := openTestStore(t)

	stale, err := s.CreateConversation("stale")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if err := s.SaveMessage(stale.ID, models.Message{ID: "m1", Content: "old", Role: models.RoleUser}); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}
	backdate(t, s, stale, 40*24*time.Hour)

	fresh, err := s.CreateConversation("fresh")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	if err := RunOnce(s, 30*24*time.Hour); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if _, err := s.GetConversation(stale.ID); err == nil {
		t.Fatal("stale conversation survived the sweep")
	}
	msgs, err := s.ListMessagesSync(stale.ID)
	if err != nil {
		t.Fatalf("ListMessagesSync: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("stale messages survived: %d", len(msgs))
	}
	if _, err := s.GetConversation(fresh.ID); err != nil {
		t.Fatalf("fresh conversation purged: %v", err)
	}
}

func TestRunOnceEmptyStore(t *testing.T) {
	s := openTestStore(t)
	if err := RunOnce(s, time.Hour); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
}

func TestStartDisabled(t *testing.T) {
	s := openTestStore(t)
	cancel, err := Start(context.Background(), config.RetentionConfig{Enabled: false}, s)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
}

func TestStartRejectsBadConfig(t *testing.T) {
	s := openTestStore(t)

	if _, err := Start(context.Background(), config.RetentionConfig{Enabled: true}, s); err == nil {
		t.Fatal("expected error for missing period")
	}
	if _, err := Start(context.Background(), config.RetentionConfig{Enabled: true, Period: "30d", Cron: "not a cron"}, s); err == nil {
		t.Fatal("expected error for invalid cron")
	}
	cancel, err := Start(context.Background(), config.RetentionConfig{Enabled: true, Period: "30d"}, s)
	if err != nil {
		t.Fatalf("Start with default cron: %v", err)
	}
	cancel()
}
