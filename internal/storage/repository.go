package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cashtimachann/internal/core"
	"cashtimachann/internal/recipients"
	"cashtimachann/internal/twofactor"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; serialize through one connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("SQLite repository ready", "path", dbPath, "schema_version", version)

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ListRecipients implements recipients.Store
func (r *SQLiteRepository) ListRecipients(ctx context.Context, userID core.ID) ([]recipients.Recipient, error) {
	rows, err := r.queries.ListRecipientsByUser(ctx, userID.String())
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	out := make([]recipients.Recipient, 0, len(rows))
	for _, row := range rows {
		out = append(out, recipients.Recipient{
			ID:       row.ID,
			Name:     row.Name,
			Phone:    row.Phone,
			Email:    row.Email,
			LastUsed: time.UnixMilli(row.LastUsed).UTC(),
		})
	}
	return out, nil
}

// ReplaceRecipients implements recipients.Store. The book is rewritten in
// one transaction so the unique indexes never see a half-merged state.
func (r *SQLiteRepository) ReplaceRecipients(ctx context.Context, userID core.ID, book []recipients.Recipient) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	if err := q.DeleteRecipientsByUser(ctx, userID.String()); err != nil {
		return fmt.Errorf("clear recipients: %w", err)
	}
	for _, rc := range book {
		err := q.InsertRecipient(ctx, InsertRecipientParams{
			ID:       rc.ID,
			UserID:   userID.String(),
			Name:     rc.Name,
			Phone:    rc.Phone,
			Email:    rc.Email,
			LastUsed: rc.LastUsed.UnixMilli(),
		})
		if err != nil {
			return fmt.Errorf("insert recipient %s: %w", rc.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit recipients: %w", err)
	}

	slog.DebugContext(ctx, "Recipient book saved", "user_id", userID.String(), "count", len(book))
	return nil
}

// ListRecipientOwners implements recipients.Store
func (r *SQLiteRepository) ListRecipientOwners(ctx context.Context) ([]core.ID, error) {
	ids, err := r.queries.ListRecipientOwners(ctx)
	if err != nil {
		return nil, fmt.Errorf("list recipient owners: %w", err)
	}
	out := make([]core.ID, len(ids))
	for i, id := range ids {
		out[i] = core.ID(id)
	}
	return out, nil
}

// GetAdminPreferences returns the stored preferences or the defaults.
func (r *SQLiteRepository) GetAdminPreferences(ctx context.Context, userID core.ID) (core.AdminPreferences, error) {
	row, err := r.queries.GetAdminPreferences(ctx, userID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return core.DefaultAdminPreferences(), nil
	}
	if err != nil {
		return core.DefaultAdminPreferences(), fmt.Errorf("get admin preferences: %w", err)
	}
	return core.AdminPreferences{
		ViewMode:     row.ViewMode,
		Density:      row.Density,
		SortBy:       row.SortBy,
		SortDir:      row.SortDir,
		ItemsPerPage: int(row.ItemsPerPage),
	}.Normalized(), nil
}

// SaveAdminPreferences stores normalized preferences and returns them.
func (r *SQLiteRepository) SaveAdminPreferences(ctx context.Context, userID core.ID, p core.AdminPreferences) (core.AdminPreferences, error) {
	p = p.Normalized()
	err := r.queries.UpsertAdminPreferences(ctx, AdminPreference{
		UserID:       userID.String(),
		ViewMode:     p.ViewMode,
		Density:      p.Density,
		SortBy:       p.SortBy,
		SortDir:      p.SortDir,
		ItemsPerPage: int64(p.ItemsPerPage),
	})
	if err != nil {
		return p, fmt.Errorf("save admin preferences: %w", err)
	}
	return p, nil
}

// GetEnrollment implements twofactor.Store
func (r *SQLiteRepository) GetEnrollment(ctx context.Context, email string) (twofactor.Enrollment, error) {
	row, err := r.queries.GetAdminTotp(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return twofactor.Enrollment{}, twofactor.ErrNotEnrolled
	}
	if err != nil {
		return twofactor.Enrollment{}, fmt.Errorf("get totp enrolment: %w", err)
	}
	return twofactor.Enrollment{
		Email:     row.Email,
		Secret:    row.Secret,
		Confirmed: row.Confirmed,
		CreatedAt: time.UnixMilli(row.CreatedAt).UTC(),
	}, nil
}

// SaveEnrollment implements twofactor.Store
func (r *SQLiteRepository) SaveEnrollment(ctx context.Context, e twofactor.Enrollment) error {
	err := r.queries.UpsertAdminTotp(ctx, AdminTotp{
		Email:     e.Email,
		Secret:    e.Secret,
		Confirmed: e.Confirmed,
		CreatedAt: e.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("save totp enrolment: %w", err)
	}
	return nil
}

var (
	_ recipients.Store = (*SQLiteRepository)(nil)
	_ twofactor.Store  = (*SQLiteRepository)(nil)
)
