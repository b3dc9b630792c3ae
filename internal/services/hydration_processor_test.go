package services

import (
	"context"
	"testing"
	"time"

	"cashtimachann/internal/core"
	"cashtimachann/internal/gateway/memory"
	applog "cashtimachann/internal/log"
	"cashtimachann/internal/recipients"
)

func newHydrationFixture(t *testing.T, config HydrationProcessorConfig) (*HydrationProcessor, *recipients.Book, *memory.Store) {
	t.Helper()
	gw := memory.New()
	book := recipients.NewBook(recipients.NewMemoryStore(), applog.Discard())
	dir := NewDirectory(gw, gw.TokenFor("admin@cashtimachann.ht"))
	return NewHydrationProcessor(book, dir, config, applog.Discard()), book, gw
}

func TestDefaultHydrationProcessorConfig(t *testing.T) {
	config := DefaultHydrationProcessorConfig()
	if config.PollInterval != 5*time.Minute {
		t.Errorf("expected PollInterval 5m, got %v", config.PollInterval)
	}
	if config.BatchSize != 20 {
		t.Errorf("expected BatchSize 20, got %d", config.BatchSize)
	}
}

func TestHydrationProcessor_ProcessBatch(t *testing.T) {
	p, book, _ := newHydrationFixture(t, DefaultHydrationProcessorConfig())
	ctx := context.Background()

	if _, err := book.Save(ctx, "2", recipients.FromContact("", "+509 3812 3456")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := book.Save(ctx, "3", recipients.FromContact("", "client@cashtimachann.ht")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := book.Save(ctx, "3", recipients.FromContact("", "49999999")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if n := p.ProcessBatch(ctx); n != 2 {
		t.Fatalf("filled = %d, want 2", n)
	}

	got, _ := book.List(ctx, "2")
	if len(got) != 1 || got[0].Name != "Roz Sen Lwi" {
		t.Errorf("book 2 = %+v", got)
	}
	got, _ = book.List(ctx, "3")
	names := map[string]string{}
	for _, r := range got {
		names[r.Contact()] = r.Name
	}
	if names["client@cashtimachann.ht"] != "Jan Pyè" {
		t.Errorf("email contact not hydrated: %+v", got)
	}
	if names["49999999"] != "" {
		t.Errorf("unknown contact should stay unnamed: %+v", got)
	}

	// Nothing left to fill.
	if n := p.ProcessBatch(ctx); n != 0 {
		t.Errorf("second pass filled %d", n)
	}
}

func TestHydrationProcessor_BatchRotates(t *testing.T) {
	p, book, _ := newHydrationFixture(t, HydrationProcessorConfig{PollInterval: time.Hour, BatchSize: 1})
	ctx := context.Background()
	for _, owner := range []core.ID{"2", "3"} {
		if _, err := book.Save(ctx, owner, recipients.FromContact("", "38123456")); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	if n := p.ProcessBatch(ctx); n != 1 {
		t.Fatalf("first batch filled %d, want 1", n)
	}
	if n := p.ProcessBatch(ctx); n != 1 {
		t.Fatalf("second batch filled %d, want 1", n)
	}
	for _, owner := range []core.ID{"2", "3"} {
		got, _ := book.List(ctx, owner)
		if got[0].Name == "" {
			t.Errorf("book %s not hydrated", owner)
		}
	}
}

func TestHydrationProcessor_DirectoryUnavailable(t *testing.T) {
	gw := memory.New()
	book := recipients.NewBook(recipients.NewMemoryStore(), applog.Discard())
	// A client token cannot list users.
	dir := NewDirectory(gw, gw.TokenFor("client@cashtimachann.ht"))
	p := NewHydrationProcessor(book, dir, DefaultHydrationProcessorConfig(), applog.Discard())

	ctx := context.Background()
	if _, err := book.Save(ctx, "2", recipients.FromContact("", "38123456")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if n := p.ProcessBatch(ctx); n != 0 {
		t.Errorf("filled = %d, want 0", n)
	}
}

func TestHydrationProcessor_StartStop(t *testing.T) {
	p, book, _ := newHydrationFixture(t, HydrationProcessorConfig{PollInterval: 10 * time.Millisecond, BatchSize: 5})
	ctx := context.Background()
	if _, err := book.Save(ctx, "2", recipients.FromContact("", "38123456")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if p.IsRunning() {
		t.Error("processor should not be running initially")
	}
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Error("expected error when starting already running processor")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, _ := book.List(ctx, "2")
		if len(got) == 1 && got[0].Name != "" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if p.IsRunning() {
		t.Error("processor should be stopped")
	}
	got, _ := book.List(ctx, "2")
	if got[0].Name != "Roz Sen Lwi" {
		t.Errorf("name = %q", got[0].Name)
	}
}

func TestHydrationProcessor_StopNotRunning(t *testing.T) {
	p, _, _ := newHydrationFixture(t, DefaultHydrationProcessorConfig())
	if err := p.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}

func TestSearchLookup(t *testing.T) {
	gw := memory.New()
	lookup := SearchLookup(gw, gw.TokenFor("client@cashtimachann.ht"))
	name, err := lookup(context.Background(), "rose@cashtimachann.ht")
	if err != nil || name != "Roz Sen Lwi" {
		t.Fatalf("lookup = %q, %v", name, err)
	}
	name, _ = lookup(context.Background(), "nobody@cashtimachann.ht")
	if name != "" {
		t.Errorf("unknown contact = %q", name)
	}
}
