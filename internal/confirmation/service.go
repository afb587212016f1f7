package confirmation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukerupert/quizapp/internal/model"
	"github.com/dukerupert/quizapp/internal/store"
	"github.com/dukerupert/quizapp/internal/token"
)

var (
	ErrAccountAlreadyExists = errors.New("account already exists")
	ErrAccountNotFound      = errors.New("account not found")
	ErrInvalidCode          = errors.New("invalid confirmation code")
	ErrCodeAlreadyUsed      = errors.New("confirmation code already used")
	ErrDelivery             = errors.New("confirmation email delivery failed")
)

const (
	confirmationSubject  = "Please confirm your account"
	confirmationTemplate = "confirmation"
)

type LinkGenerator interface {
	Generate(baseURL string) (token.Link, error)
}

type Mailer interface {
	Send(ctx context.Context, from, to, subject, templateRef string, vars map[string]any) error
}

type Config struct {
	// From is the sender address of confirmation emails.
	From string
}

// SignupInput is a validated signup request. PasswordHash is already hashed.
type SignupInput struct {
	Email        string
	DisplayName  string
	PasswordHash string
}

type CurrentUser struct {
	ID   int64
	Name string
}

type Service struct {
	accounts *store.AccountStore
	links    LinkGenerator
	mailer   Mailer
	cfg      Config
	logger   *slog.Logger
}

func NewService(accounts *store.AccountStore, links LinkGenerator, mailer Mailer, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		accounts: accounts,
		links:    links,
		mailer:   mailer,
		cfg:      cfg,
		logger:   logger,
	}
}

// Signup creates an unconfirmed account and mails its confirmation link.
// When delivery fails the account remains persisted and the returned error
// wraps ErrDelivery.
func (s *Service) Signup(ctx context.Context, in SignupInput, baseURL string) (*model.Account, error) {
	existing, err := s.accounts.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("check existing account: %w", err)
	}
	if existing != nil {
		return nil, ErrAccountAlreadyExists
	}

	link, err := s.links.Generate(baseURL)
	if err != nil {
		return nil, fmt.Errorf("generate confirmation link: %w", err)
	}

	// A concurrent signup for the same email can still win the insert; the
	// store reports that as ErrDuplicateIdentity.
	account, err := s.accounts.Create(ctx, model.NewAccount{
		Email:             in.Email,
		DisplayName:       in.DisplayName,
		PasswordHash:      in.PasswordHash,
		ConfirmationToken: link.Token,
	})
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	s.logger.Info("account created", "account_id", account.ID)

	if err := s.sendConfirmation(ctx, account, link); err != nil {
		return account, err
	}
	return account, nil
}

// Confirm redeems code. It succeeds at most once per account.
func (s *Service) Confirm(ctx context.Context, code string) (*model.Account, error) {
	if code == "" {
		return nil, ErrInvalidCode
	}

	var confirmed *model.Account
	err := s.accounts.InTx(ctx, func(tx *store.AccountStore) error {
		account, err := tx.GetByConfirmationToken(ctx, code)
		if err != nil {
			return err
		}
		if account == nil {
			return ErrInvalidCode
		}
		if account.Confirmed {
			return ErrCodeAlreadyUsed
		}

		flipped, err := tx.MarkConfirmed(ctx, account.ID)
		if err != nil {
			return err
		}
		if !flipped {
			return ErrCodeAlreadyUsed
		}

		account.Confirmed = true
		confirmed = account
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("account confirmed", "account_id", confirmed.ID)
	return confirmed, nil
}

// ResendConfirmation rotates the account's token and mails a fresh link. The
// previous link stops working once the rotation commits.
func (s *Service) ResendConfirmation(ctx context.Context, email, baseURL string) error {
	var (
		account *model.Account
		link    token.Link
	)
	err := s.accounts.InTx(ctx, func(tx *store.AccountStore) error {
		a, err := tx.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if a == nil {
			return ErrAccountNotFound
		}

		link, err = s.links.Generate(baseURL)
		if err != nil {
			return fmt.Errorf("generate confirmation link: %w", err)
		}
		if err := tx.RotateConfirmationToken(ctx, a.ID, link.Token); err != nil {
			return err
		}

		a.ConfirmationToken = &link.Token
		account = a
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("confirmation token rotated", "account_id", account.ID)
	return s.sendConfirmation(ctx, account, link)
}

// CurrentUser returns the id and display name of a logged-in account.
func (s *Service) CurrentUser(ctx context.Context, email string) (CurrentUser, error) {
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return CurrentUser{}, fmt.Errorf("get current user: %w", err)
	}
	if account == nil {
		return CurrentUser{}, fmt.Errorf("current user %q: %w", email, ErrAccountNotFound)
	}
	return CurrentUser{ID: account.ID, Name: account.DisplayName}, nil
}

func (s *Service) sendConfirmation(ctx context.Context, account *model.Account, link token.Link) error {
	to := fmt.Sprintf("%s <%s>", account.DisplayName, account.Email)
	vars := map[string]any{
		"name":       account.DisplayName,
		"confirmUrl": link.URL,
	}

	if err := s.mailer.Send(ctx, s.cfg.From, to, confirmationSubject, confirmationTemplate, vars); err != nil {
		s.logger.Error("send confirmation email", "account_id", account.ID, "error", err)
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	return nil
}
