package confirmation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dukerupert/quizapp/internal/database"
	"github.com/dukerupert/quizapp/internal/store"
	"github.com/dukerupert/quizapp/internal/token"
)

const testBaseURL = "https://quiz.example.org"

type sentMail struct {
	From, To, Subject, Template string
	Vars                        map[string]any
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) Send(_ context.Context, from, to, subject, templateRef string, vars map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{From: from, To: to, Subject: subject, Template: templateRef, Vars: vars})
	return nil
}

func (m *recordingMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no email sent")
	}
	return m.sent[len(m.sent)-1]
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type failingLinks struct{}

func (failingLinks) Generate(string) (token.Link, error) {
	return token.Link{}, errors.New("entropy exhausted")
}

func setupService(t *testing.T, dbPath string) (*Service, *store.AccountStore, *recordingMailer) {
	t.Helper()
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	accounts := store.NewAccountStore(db)
	mailer := &recordingMailer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(accounts, token.NewGenerator(), mailer, Config{From: "Quiz <noreply@quiz.example.org>"}, logger)
	return svc, accounts, mailer
}

func kateInput() SignupInput {
	return SignupInput{
		Email:        "kate@example.org",
		DisplayName:  "Kate",
		PasswordHash: "$2a$04$hash-of-kate",
	}
}

func tokenFromMail(t *testing.T, m sentMail) string {
	t.Helper()
	u, ok := m.Vars["confirmUrl"].(string)
	if !ok || u == "" {
		t.Fatalf("confirmUrl = %v", m.Vars["confirmUrl"])
	}
	return path.Base(u)
}

func TestSignupConfirmScenario(t *testing.T) {
	svc, accounts, mailer := setupService(t, ":memory:")
	ctx := context.Background()

	a, err := svc.Signup(ctx, kateInput(), testBaseURL)
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if a.Confirmed {
		t.Error("new account must not be confirmed")
	}

	m := mailer.last(t)
	if m.From != "Quiz <noreply@quiz.example.org>" {
		t.Errorf("from = %q", m.From)
	}
	if m.To != "Kate <kate@example.org>" {
		t.Errorf("to = %q, want %q", m.To, "Kate <kate@example.org>")
	}
	if m.Subject != "Please confirm your account" {
		t.Errorf("subject = %q", m.Subject)
	}
	if m.Template != "confirmation" {
		t.Errorf("template = %q, want confirmation", m.Template)
	}
	if m.Vars["name"] != "Kate" {
		t.Errorf("name var = %v, want Kate", m.Vars["name"])
	}

	code := tokenFromMail(t, m)
	if a.ConfirmationToken == nil || *a.ConfirmationToken != code {
		t.Fatalf("stored token = %v, mailed %q", a.ConfirmationToken, code)
	}
	if want := testBaseURL + "/confirm/" + code; m.Vars["confirmUrl"] != want {
		t.Errorf("confirmUrl = %v, want %q", m.Vars["confirmUrl"], want)
	}

	confirmed, err := svc.Confirm(ctx, code)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !confirmed.Confirmed || confirmed.Email != "kate@example.org" {
		t.Errorf("confirmed account = %+v", confirmed)
	}

	stored, err := accounts.GetByEmail(ctx, "kate@example.org")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if !stored.Confirmed {
		t.Error("expected stored account to be confirmed")
	}
	if stored.ConfirmationToken == nil || *stored.ConfirmationToken != code {
		t.Error("confirmation must not clear the token")
	}

	if _, err := svc.Confirm(ctx, code); !errors.Is(err, ErrCodeAlreadyUsed) {
		t.Fatalf("second confirm err = %v, want ErrCodeAlreadyUsed", err)
	}

	cu, err := svc.CurrentUser(ctx, "kate@example.org")
	if err != nil {
		t.Fatalf("current user: %v", err)
	}
	if cu.ID != a.ID || cu.Name != "Kate" {
		t.Errorf("current user = %+v", cu)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	svc, accounts, mailer := setupService(t, ":memory:")
	ctx := context.Background()

	if _, err := svc.Signup(ctx, kateInput(), testBaseURL); err != nil {
		t.Fatalf("signup: %v", err)
	}
	other := kateInput()
	other.DisplayName = "Impostor"

	if _, err := svc.Signup(ctx, other, testBaseURL); !errors.Is(err, ErrAccountAlreadyExists) {
		t.Fatalf("err = %v, want ErrAccountAlreadyExists", err)
	}
	if mailer.count() != 1 {
		t.Errorf("emails sent = %d, want 1", mailer.count())
	}

	a, err := accounts.GetByEmail(ctx, "kate@example.org")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if a.DisplayName != "Kate" {
		t.Errorf("display name = %q, existing account must be unchanged", a.DisplayName)
	}
}

func TestSignupDeliveryFailureKeepsAccount(t *testing.T) {
	svc, accounts, mailer := setupService(t, ":memory:")
	ctx := context.Background()
	mailer.err = errors.New("smtp down")

	a, err := svc.Signup(ctx, kateInput(), testBaseURL)
	if !errors.Is(err, ErrDelivery) {
		t.Fatalf("err = %v, want ErrDelivery", err)
	}
	if a == nil {
		t.Fatal("expected account despite delivery failure")
	}

	stored, err := accounts.GetByEmail(ctx, "kate@example.org")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if stored == nil || stored.Confirmed {
		t.Fatalf("stored account = %+v, want unconfirmed account", stored)
	}
}

func TestSignupInvalidBaseURL(t *testing.T) {
	svc, accounts, mailer := setupService(t, ":memory:")
	ctx := context.Background()

	if _, err := svc.Signup(ctx, kateInput(), "not a url"); err == nil {
		t.Fatal("expected error for relative base url")
	}
	a, err := accounts.GetByEmail(ctx, "kate@example.org")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if a != nil {
		t.Error("no account should be created when the link cannot be built")
	}
	if mailer.count() != 0 {
		t.Errorf("emails sent = %d, want 0", mailer.count())
	}
}

func TestConfirmUnknownCode(t *testing.T) {
	svc, _, _ := setupService(t, ":memory:")

	for _, code := range []string{"", "does-not-exist"} {
		if _, err := svc.Confirm(context.Background(), code); !errors.Is(err, ErrInvalidCode) {
			t.Errorf("Confirm(%q) err = %v, want ErrInvalidCode", code, err)
		}
	}
}

func TestResendConfirmationRotatesToken(t *testing.T) {
	svc, _, mailer := setupService(t, ":memory:")
	ctx := context.Background()

	if _, err := svc.Signup(ctx, kateInput(), testBaseURL); err != nil {
		t.Fatalf("signup: %v", err)
	}
	oldCode := tokenFromMail(t, mailer.last(t))

	if err := svc.ResendConfirmation(ctx, "kate@example.org", testBaseURL); err != nil {
		t.Fatalf("resend: %v", err)
	}
	m := mailer.last(t)
	newCode := tokenFromMail(t, m)
	if newCode == oldCode {
		t.Fatal("resend must mint a new token")
	}
	if m.To != "Kate <kate@example.org>" || m.Subject != "Please confirm your account" {
		t.Errorf("resent mail = %+v", m)
	}

	if _, err := svc.Confirm(ctx, oldCode); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("old code err = %v, want ErrInvalidCode", err)
	}
	if _, err := svc.Confirm(ctx, newCode); err != nil {
		t.Fatalf("confirm new code: %v", err)
	}
}

func TestResendConfirmationUnknownEmail(t *testing.T) {
	svc, _, mailer := setupService(t, ":memory:")

	err := svc.ResendConfirmation(context.Background(), "nobody@example.org", testBaseURL)
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
	if mailer.count() != 0 {
		t.Errorf("emails sent = %d, want 0", mailer.count())
	}
}

func TestResendConfirmationOnConfirmedAccount(t *testing.T) {
	svc, accounts, mailer := setupService(t, ":memory:")
	ctx := context.Background()

	if _, err := svc.Signup(ctx, kateInput(), testBaseURL); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, err := svc.Confirm(ctx, tokenFromMail(t, mailer.last(t))); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if err := svc.ResendConfirmation(ctx, "kate@example.org", testBaseURL); err != nil {
		t.Fatalf("resend: %v", err)
	}
	a, err := accounts.GetByEmail(ctx, "kate@example.org")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if !a.Confirmed {
		t.Error("resend must not unconfirm the account")
	}

	if _, err := svc.Confirm(ctx, tokenFromMail(t, mailer.last(t))); !errors.Is(err, ErrCodeAlreadyUsed) {
		t.Fatalf("err = %v, want ErrCodeAlreadyUsed", err)
	}
}

func TestResendConfirmationLinkFailureRollsBack(t *testing.T) {
	svc, accounts, mailer := setupService(t, ":memory:")
	ctx := context.Background()

	a, err := svc.Signup(ctx, kateInput(), testBaseURL)
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	svc.links = failingLinks{}

	if err := svc.ResendConfirmation(ctx, "kate@example.org", testBaseURL); err == nil {
		t.Fatal("expected error")
	}
	stored, err := accounts.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if *stored.ConfirmationToken != *a.ConfirmationToken {
		t.Error("token must be unchanged when resend fails")
	}
	if mailer.count() != 1 {
		t.Errorf("emails sent = %d, want 1", mailer.count())
	}
}

func TestResendConfirmationDeliveryFailure(t *testing.T) {
	svc, accounts, mailer := setupService(t, ":memory:")
	ctx := context.Background()

	a, err := svc.Signup(ctx, kateInput(), testBaseURL)
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	mailer.err = errors.New("smtp down")

	if err := svc.ResendConfirmation(ctx, "kate@example.org", testBaseURL); !errors.Is(err, ErrDelivery) {
		t.Fatalf("err = %v, want ErrDelivery", err)
	}
	// The rotation committed before delivery was attempted.
	stored, err := accounts.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if *stored.ConfirmationToken == *a.ConfirmationToken {
		t.Error("expected token to be rotated")
	}
}

func TestCurrentUserMissing(t *testing.T) {
	svc, _, _ := setupService(t, ":memory:")

	if _, err := svc.CurrentUser(context.Background(), "nobody@example.org"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestConfirmConcurrent(t *testing.T) {
	svc, _, mailer := setupService(t, filepath.Join(t.TempDir(), "quiz.db"))
	ctx := context.Background()

	if _, err := svc.Signup(ctx, kateInput(), testBaseURL); err != nil {
		t.Fatalf("signup: %v", err)
	}
	code := tokenFromMail(t, mailer.last(t))

	const workers = 2
	errs := make([]error, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Confirm(ctx, code)
		}()
	}
	close(start)
	wg.Wait()

	var ok, used int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrCodeAlreadyUsed):
			used++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || used != 1 {
		t.Fatalf("successes = %d, already used = %d, want 1 and 1", ok, used)
	}
}

// A confirm that arrives after a resend has committed sees the old token as
// unknown rather than used.
func TestConfirmAfterRotationIsInvalid(t *testing.T) {
	svc, _, mailer := setupService(t, filepath.Join(t.TempDir(), "quiz.db"))
	ctx := context.Background()

	if _, err := svc.Signup(ctx, kateInput(), testBaseURL); err != nil {
		t.Fatalf("signup: %v", err)
	}
	oldCode := tokenFromMail(t, mailer.last(t))

	if err := svc.ResendConfirmation(ctx, "kate@example.org", testBaseURL); err != nil {
		t.Fatalf("resend: %v", err)
	}
	if _, err := svc.Confirm(ctx, oldCode); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("err = %v, want ErrInvalidCode", err)
	}
}

// Resend and confirm with the previous token may run in either order. Confirm
// either wins, or it sees the rotated-away token as unknown and the new token
// still confirms the account.
func TestResendRacesConfirm(t *testing.T) {
	svc, accounts, mailer := setupService(t, filepath.Join(t.TempDir(), "quiz.db"))
	ctx := context.Background()

	for round := range 5 {
		in := kateInput()
		in.Email = fmt.Sprintf("kate%d@example.org", round)
		if _, err := svc.Signup(ctx, in, testBaseURL); err != nil {
			t.Fatalf("round %d: signup: %v", round, err)
		}
		oldCode := tokenFromMail(t, mailer.last(t))

		var confirmErr, resendErr error
		var wg sync.WaitGroup
		start := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, confirmErr = svc.Confirm(ctx, oldCode)
		}()
		go func() {
			defer wg.Done()
			<-start
			resendErr = svc.ResendConfirmation(ctx, in.Email, testBaseURL)
		}()
		close(start)
		wg.Wait()

		if resendErr != nil {
			t.Fatalf("round %d: resend: %v", round, resendErr)
		}

		a, err := accounts.GetByEmail(ctx, in.Email)
		if err != nil || a == nil {
			t.Fatalf("round %d: get account: %v", round, err)
		}
		switch {
		case confirmErr == nil:
			if !a.Confirmed {
				t.Fatalf("round %d: confirm succeeded but account is unconfirmed", round)
			}
		case errors.Is(confirmErr, ErrInvalidCode):
			if a.Confirmed {
				t.Fatalf("round %d: invalid code but account is confirmed", round)
			}
			if _, err := svc.Confirm(ctx, tokenFromMail(t, mailer.last(t))); err != nil {
				t.Fatalf("round %d: confirm with new token: %v", round, err)
			}
		default:
			t.Fatalf("round %d: confirm: %v", round, confirmErr)
		}
	}
}
