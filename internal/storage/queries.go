package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type SavedRecipient struct {
	ID       string
	UserID   string
	Name     string
	Phone    string
	Email    string
	LastUsed int64
}

type AdminPreference struct {
	UserID       string
	ViewMode     string
	Density      string
	SortBy       string
	SortDir      string
	ItemsPerPage int64
}

type AdminTotp struct {
	Email     string
	Secret    string
	Confirmed bool
	CreatedAt int64
}

const listRecipientsByUser = `-- name: ListRecipientsByUser :many
SELECT id, user_id, name, phone, email, last_used
FROM saved_recipients
WHERE user_id = ?
ORDER BY last_used DESC, id
`

func (q *Queries) ListRecipientsByUser(ctx context.Context, userID string) ([]SavedRecipient, error) {
	rows, err := q.db.QueryContext(ctx, listRecipientsByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SavedRecipient
	for rows.Next() {
		var i SavedRecipient
		if err := rows.Scan(&i.ID, &i.UserID, &i.Name, &i.Phone, &i.Email, &i.LastUsed); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteRecipientsByUser = `-- name: DeleteRecipientsByUser :exec
DELETE FROM saved_recipients WHERE user_id = ?
`

func (q *Queries) DeleteRecipientsByUser(ctx context.Context, userID string) error {
	_, err := q.db.ExecContext(ctx, deleteRecipientsByUser, userID)
	return err
}

const insertRecipient = `-- name: InsertRecipient :exec
INSERT INTO saved_recipients (id, user_id, name, phone, email, last_used)
VALUES (?, ?, ?, ?, ?, ?)
`

type InsertRecipientParams struct {
	ID       string
	UserID   string
	Name     string
	Phone    string
	Email    string
	LastUsed int64
}

func (q *Queries) InsertRecipient(ctx context.Context, arg InsertRecipientParams) error {
	_, err := q.db.ExecContext(ctx, insertRecipient,
		arg.ID,
		arg.UserID,
		arg.Name,
		arg.Phone,
		arg.Email,
		arg.LastUsed,
	)
	return err
}

const listRecipientOwners = `-- name: ListRecipientOwners :many
SELECT DISTINCT user_id FROM saved_recipients ORDER BY user_id
`

func (q *Queries) ListRecipientOwners(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listRecipientOwners)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		items = append(items, userID)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getAdminPreferences = `-- name: GetAdminPreferences :one
SELECT user_id, view_mode, density, sort_by, sort_dir, items_per_page
FROM admin_preferences
WHERE user_id = ?
`

func (q *Queries) GetAdminPreferences(ctx context.Context, userID string) (AdminPreference, error) {
	row := q.db.QueryRowContext(ctx, getAdminPreferences, userID)
	var i AdminPreference
	err := row.Scan(&i.UserID, &i.ViewMode, &i.Density, &i.SortBy, &i.SortDir, &i.ItemsPerPage)
	return i, err
}

const upsertAdminPreferences = `-- name: UpsertAdminPreferences :exec
INSERT INTO admin_preferences (user_id, view_mode, density, sort_by, sort_dir, items_per_page, updated_at)
VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(user_id) DO UPDATE SET
    view_mode = excluded.view_mode,
    density = excluded.density,
    sort_by = excluded.sort_by,
    sort_dir = excluded.sort_dir,
    items_per_page = excluded.items_per_page,
    updated_at = CURRENT_TIMESTAMP
`

func (q *Queries) UpsertAdminPreferences(ctx context.Context, arg AdminPreference) error {
	_, err := q.db.ExecContext(ctx, upsertAdminPreferences,
		arg.UserID,
		arg.ViewMode,
		arg.Density,
		arg.SortBy,
		arg.SortDir,
		arg.ItemsPerPage,
	)
	return err
}

const getAdminTotp = `-- name: GetAdminTotp :one
SELECT email, secret, confirmed, created_at FROM admin_totp WHERE email = ?
`

func (q *Queries) GetAdminTotp(ctx context.Context, email string) (AdminTotp, error) {
	row := q.db.QueryRowContext(ctx, getAdminTotp, email)
	var i AdminTotp
	err := row.Scan(&i.Email, &i.Secret, &i.Confirmed, &i.CreatedAt)
	return i, err
}

const upsertAdminTotp = `-- name: UpsertAdminTotp :exec
INSERT INTO admin_totp (email, secret, confirmed, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(email) DO UPDATE SET
    secret = excluded.secret,
    confirmed = excluded.confirmed
`

func (q *Queries) UpsertAdminTotp(ctx context.Context, arg AdminTotp) error {
	_, err := q.db.ExecContext(ctx, upsertAdminTotp,
		arg.Email,
		arg.Secret,
		arg.Confirmed,
		arg.CreatedAt,
	)
	return err
}
