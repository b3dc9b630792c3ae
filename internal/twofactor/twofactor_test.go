package twofactor

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	applog "cashtimachann/internal/log"
)

type fakeStore struct {
	mu   sync.Mutex
	rows map[string]Enrollment
}

func (f *fakeStore) GetEnrollment(_ context.Context, email string) (Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.rows[email]
	if !ok {
		return Enrollment{}, ErrNotEnrolled
	}
	return e, nil
}

func (f *fakeStore) SaveEnrollment(_ context.Context, e Enrollment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[e.Email] = e
	return nil
}

func TestEnrolAndVerify(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{rows: map[string]Enrollment{}}
	svc := NewService(store, "Cash Ti Machann", applog.Discard()).WithClock(func() time.Time { return now })
	ctx := context.Background()

	if err := svc.Verify(ctx, "admin@cashtimachann.ht", "000000"); !errors.Is(err, ErrNotEnrolled) {
		t.Fatalf("verify before enrolment = %v", err)
	}

	e, err := svc.Begin(ctx, " Admin@CashTiMachann.ht ")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if e.Email != "admin@cashtimachann.ht" || e.Secret == "" || e.Confirmed {
		t.Fatalf("enrolment = %+v", e)
	}
	again, _ := svc.Begin(ctx, "admin@cashtimachann.ht")
	if again.Secret != e.Secret {
		t.Fatal("Begin must reuse the stored secret")
	}

	if err := svc.Verify(ctx, e.Email, "000000"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("wrong code = %v", err)
	}

	code, err := totp.GenerateCode(e.Secret, now)
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	if err := svc.Verify(ctx, e.Email, code); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if stored, _ := store.GetEnrollment(ctx, e.Email); !stored.Confirmed {
		t.Error("enrolment should be confirmed after first valid code")
	}

	u, err := svc.KeyURL(e)
	if err != nil || !strings.HasPrefix(u, "otpauth://totp/") || !strings.Contains(u, e.Secret) {
		t.Errorf("KeyURL = %q, %v", u, err)
	}
}

func TestQRCodePNG(t *testing.T) {
	raw, err := QRCodePNG("otpauth://totp/x:y?secret=ABC", 128)
	if err != nil {
		t.Fatalf("QRCodePNG: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte("\x89PNG")) {
		t.Fatal("output is not a PNG")
	}
	uri, err := QRCodeDataURI("hello", 64)
	if err != nil || !strings.HasPrefix(uri, "data:image/png;base64,") {
		t.Fatalf("QRCodeDataURI = %.30q, %v", uri, err)
	}
}
