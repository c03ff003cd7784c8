package retention

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/wwwzy/BookAgent/internal/storage"
)

func openTestStorage(t *testing.T) *storage.Storage {
	t.Helper()

	s, err := storage.Open(context.Background(), storage.Config{
		Path:      filepath.Join(t.TempDir(), "retention.db"),
		EnableWAL: true,
	})
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s *storage.Storage) {
	t.Helper()
	ctx := context.Background()

	for _, id := range []string{"old-1", "old-2", "old-3", "fresh"} {
		if err := s.SaveConversation(ctx, &storage.Conversation{ID: id, Flow: "IDLE", StateJSON: "{}"}); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	past := time.Now().UTC().Add(-10 * 24 * time.Hour)
	if err := s.DB().Model(&storage.Conversation{}).
		Where("id IN ?", []string{"old-1", "old-2", "old-3"}).
		UpdateColumn("updated_at", past).Error; err != nil {
		t.Fatalf("age conversations: %v", err)
	}

	now := time.Now().UTC()
	for i := 0; i < 6; i++ {
		rec := &storage.AuditRecord{
			Action:    "scheduling.list_available_slots",
			Status:    "success",
			CreatedAt: now.Add(-time.Duration(i) * 24 * time.Hour),
		}
		if err := s.InsertAuditRecord(ctx, rec); err != nil {
			t.Fatalf("insert audit %d: %v", i, err)
		}
	}
}

func TestCollector_RunOnce_PrunesByPolicy(t *testing.T) {
	s := openTestStorage(t)
	seed(t, s)

	c, err := NewCollector(s)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	c.cfg = Config{
		BatchRows:        1,
		ConversationIdle: 7 * 24 * time.Hour,
		AuditKeepFor:     72 * time.Hour,
		AuditKeepLatest:  2,
	}.withDefaults()

	if err := c.RunOnce(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	n, err := s.CountConversations(context.Background())
	if err != nil {
		t.Fatalf("count conversations: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 conversation left, got %d", n)
	}
	if _, err := s.GetConversation(context.Background(), "fresh"); err != nil {
		t.Fatalf("fresh conversation should survive: %v", err)
	}

	audits, err := s.CountAuditRecords(context.Background())
	if err != nil {
		t.Fatalf("count audit: %v", err)
	}
	if audits != 2 {
		t.Fatalf("expected 2 audit records left, got %d", audits)
	}
}

func TestCollector_RunOnce_NoPolicyKeepsEverything(t *testing.T) {
	s := openTestStorage(t)
	seed(t, s)

	if err := Prune(context.Background(), s, Config{}); err != nil {
		t.Fatalf("prune: %v", err)
	}

	n, _ := s.CountConversations(context.Background())
	if n != 4 {
		t.Fatalf("expected 4 conversations, got %d", n)
	}
	audits, _ := s.CountAuditRecords(context.Background())
	if audits != 6 {
		t.Fatalf("expected 6 audit records, got %d", audits)
	}
}

func TestManager_StartRunsCollector(t *testing.T) {
	s := openTestStorage(t)
	seed(t, s)

	c, err := NewCollector(s)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	m, err := NewManager(Config{
		Enabled:          true,
		Interval:         time.Hour,
		ConversationIdle: 7 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	m.WithCollector(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Start(ctx); err == nil {
		t.Fatalf("expected error on second start")
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		n, err := s.CountConversations(context.Background())
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for prune, still %d conversations", n)
		}
		time.Sleep(20 * time.Millisecond)
	}

	m.Stop()
	if err := m.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestManager_DisabledDoesNothing(t *testing.T) {
	m, err := NewManager(Config{Enabled: false})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	m.Stop()
	if err := m.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestManager_EnabledWithoutCollector(t *testing.T) {
	m, _ := NewManager(Config{Enabled: true})
	if err := m.Start(context.Background()); err == nil {
		t.Fatalf("expected error without collector")
	}
}

func TestNewCollector_RequiresStorage(t *testing.T) {
	if _, err := NewCollector(nil); err == nil {
		t.Fatalf("expected error")
	}
	var c *Collector
	if err := c.RunOnce(context.Background(), time.Now()); err == nil || errors.Is(err, context.Canceled) {
		t.Fatalf("expected not initialized error, got %v", err)
	}
}
