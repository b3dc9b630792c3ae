// Package recipients keeps each user's book of saved transfer
// destinations. No two entries of one book share a normalized phone or a
// normalized e-mail.
package recipients

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cashtimachann/internal/cache"
	"cashtimachann/internal/core"
	applog "cashtimachann/internal/log"
)

// MaxPerUser caps a book; the least recently used entries are dropped.
const MaxPerUser = 20

// A contact whose lookup failed or came back empty is not looked up again
// for missTTL.
const (
	missTTL     = 10 * time.Minute
	maxMissKeys = 10000
)

var ErrEmptyContact = errors.New("recipient needs a phone or an email")

type Recipient struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Phone    string    `json:"phone"`
	Email    string    `json:"email"`
	LastUsed time.Time `json:"last_used"`
}

// Contact is the value a transfer form would submit for this recipient.
func (r Recipient) Contact() string {
	if r.Phone != "" {
		return r.Phone
	}
	return r.Email
}

// Normalized returns r with its keys in canonical form.
func (r Recipient) Normalized() Recipient {
	r.Name = strings.TrimSpace(r.Name)
	r.Phone = core.NormalizePhone(r.Phone)
	r.Email = core.NormalizeEmail(r.Email)
	return r
}

func (r Recipient) sharesKey(o Recipient) bool {
	return (r.Phone != "" && r.Phone == o.Phone) || (r.Email != "" && r.Email == o.Email)
}

// FromContact builds a recipient from the single contact field of the
// transfer form.
func FromContact(name, contact string) Recipient {
	if core.LooksLikeEmail(contact) {
		return Recipient{Name: name, Email: contact}
	}
	return Recipient{Name: name, Phone: contact}
}

// Store persists whole books. ReplaceRecipients must be atomic.
type Store interface {
	ListRecipients(ctx context.Context, userID core.ID) ([]Recipient, error)
	ReplaceRecipients(ctx context.Context, userID core.ID, book []Recipient) error
	ListRecipientOwners(ctx context.Context) ([]core.ID, error)
}

// LookupFunc resolves a phone or e-mail to a display name; "" when unknown.
type LookupFunc func(ctx context.Context, contact string) (string, error)

type Book struct {
	store  Store
	now    func() time.Time
	logger *applog.Logger
	locks  userLocks
	misses *cache.LRUCache[struct{}]
}

// userLocks serializes writes to one user's book without blocking others.
type userLocks struct {
	mu    sync.Mutex
	locks map[core.ID]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

func (l *userLocks) lock(userID core.ID) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[core.ID]*userLock{}
	}
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.Lock()
	return func() {
		ul.Unlock()
		l.mu.Lock()
		if ul.refs--; ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}

func NewBook(store Store, logger *applog.Logger) *Book {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Book{
		store:  store,
		now:    time.Now,
		logger: logger.WithComponent(applog.ComponentRecipients),
		misses: cache.NewLRUCache[struct{}](maxMissKeys, missTTL),
	}
}

// WithClock overrides the time source. Used by tests.
func (b *Book) WithClock(now func() time.Time) *Book {
	b.now = now
	b.misses.WithClock(now)
	return b
}

// Misses exposes the unresolved-contact cache for periodic cleanup.
func (b *Book) Misses() *cache.LRUCache[struct{}] {
	return b.misses
}

// Merge folds r into book and returns the new book and the stored entry.
// Every existing entry sharing a key with r collapses into one; missing
// fields are filled, a non-empty newer name wins and LastUsed never moves back.
// The result is capped at MaxPerUser.
func Merge(book []Recipient, r Recipient, now time.Time) ([]Recipient, Recipient) {
	r = r.Normalized()
	merged := Recipient{ID: r.ID, Name: r.Name, Phone: r.Phone, Email: r.Email, LastUsed: now}

	out := make([]Recipient, 0, len(book)+1)
	for _, e := range book {
		if !e.sharesKey(merged) {
			out = append(out, e)
			continue
		}
		if merged.ID == "" {
			merged.ID = e.ID
		}
		if merged.Name == "" {
			merged.Name = e.Name
		}
		if merged.Phone == "" {
			merged.Phone = e.Phone
		}
		if merged.Email == "" {
			merged.Email = e.Email
		}
		if e.LastUsed.After(merged.LastUsed) {
			merged.LastUsed = e.LastUsed
		}
	}
	if merged.ID == "" {
		merged.ID = uuid.NewString()
	}
	out = append(out, merged)

	sortByLastUsed(out)
	if len(out) > MaxPerUser {
		out = out[:MaxPerUser]
	}
	return out, merged
}

func sortByLastUsed(book []Recipient) {
	sort.SliceStable(book, func(i, j int) bool {
		return book[i].LastUsed.After(book[j].LastUsed)
	})
}

// Save records a used recipient for userID. A set r.LastUsed is kept as
// the use time, otherwise the current time is used.
func (b *Book) Save(ctx context.Context, userID core.ID, r Recipient) (Recipient, error) {
	r = r.Normalized()
	if r.Phone == "" && r.Email == "" {
		return Recipient{}, ErrEmptyContact
	}

	unlock := b.locks.lock(userID)
	defer unlock()

	book, err := b.store.ListRecipients(ctx, userID)
	if err != nil {
		return Recipient{}, fmt.Errorf("load recipients: %w", err)
	}
	usedAt := b.now().UTC()
	if !r.LastUsed.IsZero() {
		usedAt = r.LastUsed.UTC()
	}
	updated, saved := Merge(book, r, usedAt)
	if err := b.store.ReplaceRecipients(ctx, userID, updated); err != nil {
		return Recipient{}, fmt.Errorf("save recipients: %w", err)
	}

	b.logger.DebugContext(ctx, "Recipient saved",
		applog.FieldUserID, userID.String(),
		applog.FieldRecipient, applog.MaskContact(saved.Contact()),
		"book_size", len(updated))
	return saved, nil
}

// List returns the book of userID, most recently used first.
func (b *Book) List(ctx context.Context, userID core.ID) ([]Recipient, error) {
	book, err := b.store.ListRecipients(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	sortByLastUsed(book)
	return book, nil
}

// Remove deletes one entry. Removing an unknown id is not an error.
func (b *Book) Remove(ctx context.Context, userID core.ID, id string) error {
	unlock := b.locks.lock(userID)
	defer unlock()

	book, err := b.store.ListRecipients(ctx, userID)
	if err != nil {
		return fmt.Errorf("load recipients: %w", err)
	}
	out := book[:0]
	for _, e := range book {
		if e.ID != id {
			out = append(out, e)
		}
	}
	if len(out) == len(book) {
		return nil
	}
	return b.store.ReplaceRecipients(ctx, userID, out)
}

// Search matches q case-insensitively against name, phone and e-mail.
// Digits in q are also matched against the normalized phone.
func (b *Book) Search(ctx context.Context, userID core.ID, q string) ([]Recipient, error) {
	book, err := b.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return book, nil
	}
	digits := core.NormalizePhone(q)
	var out []Recipient
	for _, r := range book {
		if strings.Contains(strings.ToLower(r.Name), q) ||
			strings.Contains(r.Email, q) ||
			strings.Contains(r.Phone, q) ||
			(digits != "" && strings.Contains(r.Phone, digits)) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Hydrate fills missing names of userID's book through lookup and returns
// how many entries changed. Lookups run without holding the book, so
// entries saved or removed meanwhile are respected. Failed or empty
// lookups are logged and the contact is skipped for a while.
func (b *Book) Hydrate(ctx context.Context, userID core.ID, lookup LookupFunc) (int, error) {
	book, err := b.store.ListRecipients(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load recipients: %w", err)
	}
	names := map[string]string{}
	for _, r := range book {
		contact := r.Contact()
		if r.Name != "" || contact == "" {
			continue
		}
		if _, done := names[contact]; done {
			continue
		}
		if _, missed := b.misses.Get(contact); missed {
			continue
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		name, err := lookup(ctx, contact)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			b.logger.WarnContext(ctx, "Recipient lookup failed",
				applog.FieldUserID, userID.String(),
				applog.FieldError, err.Error())
			b.misses.Set(contact, struct{}{})
			continue
		}
		if name = strings.TrimSpace(name); name == "" {
			b.misses.Set(contact, struct{}{})
			continue
		}
		names[contact] = name
	}
	if len(names) == 0 {
		return 0, nil
	}

	unlock := b.locks.lock(userID)
	defer unlock()

	book, err = b.store.ListRecipients(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("reload recipients: %w", err)
	}
	changed := 0
	for i := range book {
		if book[i].Name != "" {
			continue
		}
		if name, ok := names[book[i].Contact()]; ok {
			book[i].Name = name
			changed++
		}
	}
	if changed == 0 {
		return 0, nil
	}
	if err := b.store.ReplaceRecipients(ctx, userID, book); err != nil {
		return 0, fmt.Errorf("save hydrated recipients: %w", err)
	}
	b.logger.InfoContext(ctx, "Recipients hydrated",
		applog.FieldUserID, userID.String(),
		applog.FieldOperation, applog.OpHydrate,
		"count", changed)
	return changed, nil
}

// Owners lists the users that have a book.
func (b *Book) Owners(ctx context.Context) ([]core.ID, error) {
	return b.store.ListRecipientOwners(ctx)
}

// MemoryStore is an in-process Store for tests and stateless deployments.
type MemoryStore struct {
	mu    sync.Mutex
	books map[core.ID][]Recipient
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{books: map[core.ID][]Recipient{}}
}

func (s *MemoryStore) ListRecipients(_ context.Context, userID core.ID) ([]Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Recipient(nil), s.books[userID]...), nil
}

func (s *MemoryStore) ReplaceRecipients(_ context.Context, userID core.ID, book []Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(book) == 0 {
		delete(s.books, userID)
		return nil
	}
	s.books[userID] = append([]Recipient(nil), book...)
	return nil
}

func (s *MemoryStore) ListRecipientOwners(_ context.Context) ([]core.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.ID, 0, len(s.books))
	for id := range s.books {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
