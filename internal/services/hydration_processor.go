package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cashtimachann/internal/core"
	"cashtimachann/internal/gateway"
	applog "cashtimachann/internal/log"
	"cashtimachann/internal/recipients"
)

// HydrationProcessorConfig holds configuration for the hydration processor
type HydrationProcessorConfig struct {
	// PollInterval is how often books are scanned for missing names (default: 5m)
	PollInterval time.Duration

	// BatchSize is the max number of books hydrated per cycle (default: 20)
	BatchSize int
}

// DefaultHydrationProcessorConfig returns sensible defaults
func DefaultHydrationProcessorConfig() HydrationProcessorConfig {
	return HydrationProcessorConfig{
		PollInterval: 5 * time.Minute,
		BatchSize:    20,
	}
}

// Directory builds a contact-to-name index from the admin user listing.
type Directory struct {
	gw    gateway.Admin
	token string
}

func NewDirectory(gw gateway.Admin, token string) *Directory {
	return &Directory{gw: gw, token: token}
}

// Index fetches every user once and returns a lookup over normalized
// phones and e-mails.
func (d *Directory) Index(ctx context.Context) (recipients.LookupFunc, error) {
	users, err := d.gw.ListUsers(ctx, d.token)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	names := make(map[string]string, 2*len(users))
	for _, u := range users {
		name := u.FullName()
		if p := core.NormalizePhone(u.Phone()); p != "" {
			names[p] = name
		}
		if p := core.NormalizePhone(u.PhoneNumber); p != "" {
			names[p] = name
		}
		if e := core.NormalizeEmail(u.Email); e != "" {
			names[e] = name
		}
	}
	return func(_ context.Context, contact string) (string, error) {
		if core.LooksLikeEmail(contact) {
			return names[core.NormalizeEmail(contact)], nil
		}
		return names[core.NormalizePhone(contact)], nil
	}, nil
}

// SearchLookup resolves contacts through the user-facing directory search
// with the caller's own token.
func SearchLookup(gw gateway.Account, token string) recipients.LookupFunc {
	return func(ctx context.Context, contact string) (string, error) {
		results, err := gw.SearchUsers(ctx, token, contact)
		if err != nil {
			return "", err
		}
		phone := core.NormalizePhone(contact)
		email := core.NormalizeEmail(contact)
		for _, r := range results {
			if (phone != "" && core.NormalizePhone(r.PhoneNumber) == phone) ||
				(core.LooksLikeEmail(contact) && core.NormalizeEmail(r.Email) == email) {
				return r.DisplayName(), nil
			}
		}
		return "", nil
	}
}

// HydrationProcessor periodically fills missing recipient names.
type HydrationProcessor struct {
	book      *recipients.Book
	directory *Directory
	config    HydrationProcessorConfig
	logger    *applog.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	cursor  int
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewHydrationProcessor creates a new hydration processor
func NewHydrationProcessor(book *recipients.Book, directory *Directory, config HydrationProcessorConfig, logger *applog.Logger) *HydrationProcessor {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &HydrationProcessor{
		book:      book,
		directory: directory,
		config:    config,
		logger:    logger.WithComponent(applog.ComponentWorker),
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *HydrationProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("hydration processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Hydration processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *HydrationProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		p.logger.InfoContext(ctx, "Hydration processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Hydration processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *HydrationProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *HydrationProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.ProcessBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch hydrates the next BatchSize books, round-robin across
// calls, and returns the number of names filled.
func (p *HydrationProcessor) ProcessBatch(ctx context.Context) int {
	owners, err := p.book.Owners(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to list recipient books", applog.FieldError, err.Error())
		return 0
	}
	if len(owners) == 0 {
		return 0
	}

	lookup, err := p.directory.Index(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to build user directory", applog.FieldError, err.Error())
		return 0
	}

	p.mu.Lock()
	start := p.cursor % len(owners)
	p.mu.Unlock()

	batch := p.config.BatchSize
	if batch < 1 || batch > len(owners) {
		batch = len(owners)
	}

	filled := 0
	for i := 0; i < batch; i++ {
		if ctx.Err() != nil {
			break
		}
		owner := owners[(start+i)%len(owners)]
		n, err := p.book.Hydrate(ctx, owner, lookup)
		if err != nil {
			p.logger.WarnContext(ctx, "Failed to hydrate recipient book",
				applog.FieldUserID, owner.String(),
				applog.FieldError, err.Error())
			continue
		}
		filled += n
	}

	p.mu.Lock()
	p.cursor = start + batch
	p.mu.Unlock()

	if filled > 0 {
		p.logger.InfoContext(ctx, "Hydration batch completed", "books", batch, "names_filled", filled)
	}
	return filled
}
