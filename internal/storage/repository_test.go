package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"cashtimachann/internal/core"
	applog "cashtimachann/internal/log"
	"cashtimachann/internal/recipients"
	"cashtimachann/internal/twofactor"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	v1, err := RunMigrations(path)
	if err != nil || v1 != 1 {
		t.Fatalf("first run = %d, %v", v1, err)
	}
	v2, err := RunMigrations(path)
	if err != nil || v2 != v1 {
		t.Fatalf("second run = %d, %v", v2, err)
	}
}

func TestRecipientBookOnSQLite(t *testing.T) {
	repo := newTestRepo(t)
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	book := recipients.NewBook(repo, applog.Discard()).WithClock(func() time.Time { return now })
	ctx := context.Background()

	first, err := book.Save(ctx, "2", recipients.Recipient{Name: "Roz", Phone: "+509 3812 3456"})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	now = now.Add(time.Minute)
	if _, err := book.Save(ctx, "2", recipients.Recipient{Phone: "38123456", Email: "rose@cashtimachann.ht"}); err != nil {
		t.Fatalf("Save merge: %v", err)
	}
	now = now.Add(time.Minute)
	if _, err := book.Save(ctx, "3", recipients.Recipient{Phone: "38123456"}); err != nil {
		t.Fatalf("Save other user: %v", err)
	}

	list, err := book.List(ctx, "2")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != first.ID || list[0].Email != "rose@cashtimachann.ht" {
		t.Fatalf("list = %+v", list)
	}
	if !list[0].LastUsed.Equal(time.Date(2025, 6, 1, 8, 1, 0, 0, time.UTC)) {
		t.Errorf("LastUsed = %v", list[0].LastUsed)
	}

	owners, err := book.Owners(ctx)
	if err != nil || len(owners) != 2 {
		t.Fatalf("owners = %v, %v", owners, err)
	}
}

func TestUniqueIndexesRejectDuplicates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	dup := []recipients.Recipient{
		{ID: "a", Phone: "38123456", LastUsed: time.Now()},
		{ID: "b", Phone: "38123456", LastUsed: time.Now()},
	}
	if err := repo.ReplaceRecipients(ctx, "2", dup); err == nil {
		t.Fatal("duplicate phone should violate the unique index")
	}
	if list, _ := repo.ListRecipients(ctx, "2"); len(list) != 0 {
		t.Fatalf("failed replace must roll back, got %+v", list)
	}
}

func TestAdminPreferences(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	p, err := repo.GetAdminPreferences(ctx, "1")
	if err != nil || p != core.DefaultAdminPreferences() {
		t.Fatalf("defaults = %+v, %v", p, err)
	}
	saved, err := repo.SaveAdminPreferences(ctx, "1", core.AdminPreferences{ViewMode: "cards", SortBy: "name", SortDir: "asc", ItemsPerPage: 20})
	if err != nil {
		t.Fatalf("SaveAdminPreferences: %v", err)
	}
	got, _ := repo.GetAdminPreferences(ctx, "1")
	if got != saved || got.Density != "regular" || got.ItemsPerPage != 20 {
		t.Fatalf("got %+v, saved %+v", got, saved)
	}
}

func TestTOTPEnrollment(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.GetEnrollment(ctx, "admin@cashtimachann.ht"); !errors.Is(err, twofactor.ErrNotEnrolled) {
		t.Fatalf("missing enrolment = %v", err)
	}
	e := twofactor.Enrollment{Email: "admin@cashtimachann.ht", Secret: "JBSWY3DPEHPK3PXP", CreatedAt: time.Now().UTC().Truncate(time.Millisecond)}
	if err := repo.SaveEnrollment(ctx, e); err != nil {
		t.Fatalf("SaveEnrollment: %v", err)
	}
	e.Confirmed = true
	if err := repo.SaveEnrollment(ctx, e); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	got, err := repo.GetEnrollment(ctx, e.Email)
	if err != nil || !got.Confirmed || got.Secret != e.Secret || !got.CreatedAt.Equal(e.CreatedAt) {
		t.Fatalf("got %+v, %v", got, err)
	}
}
