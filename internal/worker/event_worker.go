package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cashtimachann/internal/amqp"
	"cashtimachann/internal/core"
	applog "cashtimachann/internal/log"
	"cashtimachann/internal/recipients"
	"cashtimachann/internal/sheets"
)

// EventWorker applies dashboard events taken off the AMQP queue: it
// records used recipients and appends exported rows to the spreadsheet.
type EventWorker struct {
	book     *recipients.Book
	exporter sheets.Exporter
	logger   *applog.Logger
}

// NewEventWorker builds a worker. exporter may be nil, in which case
// export events are dropped with a warning.
func NewEventWorker(book *recipients.Book, exporter sheets.Exporter, logger *applog.Logger) *EventWorker {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &EventWorker{
		book:     book,
		exporter: exporter,
		logger:   logger.WithComponent(applog.ComponentWorker),
	}
}

// Handle dispatches one envelope; it satisfies amqp.Handler. Malformed
// events are logged and acknowledged since redelivery cannot fix them.
func (w *EventWorker) Handle(ctx context.Context, env *amqp.Envelope) error {
	switch env.Type {
	case amqp.TypeRecipientUsed:
		var msg amqp.RecipientUsedMessage
		if err := env.Decode(&msg); err != nil {
			w.logger.ErrorContext(ctx, "Dropping malformed event", "type", env.Type, applog.FieldError, err.Error())
			return nil
		}
		return w.HandleRecipientUsed(ctx, &msg)
	case amqp.TypeSheetExport:
		var msg amqp.SheetExportMessage
		if err := env.Decode(&msg); err != nil {
			w.logger.ErrorContext(ctx, "Dropping malformed event", "type", env.Type, applog.FieldError, err.Error())
			return nil
		}
		return w.HandleSheetExport(ctx, &msg)
	default:
		w.logger.WarnContext(ctx, "Ignoring unknown event type", "type", env.Type)
		return nil
	}
}

// HandleRecipientUsed saves the recipient in the sender's book.
func (w *EventWorker) HandleRecipientUsed(ctx context.Context, msg *amqp.RecipientUsedMessage) error {
	if msg.UserID == "" {
		w.logger.WarnContext(ctx, "Recipient event without user, skipping")
		return nil
	}
	r := recipients.Recipient{Name: msg.Name, Phone: msg.Phone, Email: msg.Email, LastUsed: msg.UsedAt}
	saved, err := w.book.Save(ctx, core.ID(msg.UserID), r)
	if errors.Is(err, recipients.ErrEmptyContact) {
		w.logger.WarnContext(ctx, "Recipient event without contact, skipping", applog.FieldUserID, msg.UserID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("save recipient: %w", err)
	}
	w.logger.InfoContext(ctx, "Recipient recorded",
		applog.FieldUserID, msg.UserID,
		applog.FieldRecipient, applog.MaskContact(saved.Contact()))
	return nil
}

// HandleSheetExport appends the rows that are not in the sheet yet.
func (w *EventWorker) HandleSheetExport(ctx context.Context, msg *amqp.SheetExportMessage) error {
	if w.exporter == nil {
		w.logger.WarnContext(ctx, "No spreadsheet configured, dropping export",
			applog.FieldUserID, msg.RequestedBy,
			"rows", len(msg.Rows))
		return nil
	}
	start := time.Now()
	res, err := sheets.Export(ctx, w.exporter, msg.Header, msg.Rows)
	if err != nil {
		return fmt.Errorf("export rows: %w", err)
	}
	w.logger.InfoContext(ctx, "Export appended to spreadsheet",
		applog.FieldUserID, msg.RequestedBy,
		"filter", msg.Filter,
		"range", res.RowRef,
		"written", res.Written,
		"skipped", res.Skipped,
		applog.FieldDuration, time.Since(start).Milliseconds())
	return nil
}
