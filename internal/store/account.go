package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/quizapp/internal/database"
	"github.com/dukerupert/quizapp/internal/model"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrDuplicateIdentity is returned when an email or confirmation token
	// is already held by another account.
	ErrDuplicateIdentity = errors.New("duplicate identity")
	ErrNotFound          = errors.New("not found")
	ErrCorruptRow        = errors.New("corrupt account row")
)

// defaultAuthorities are granted to every account by the login mechanism.
var defaultAuthorities = []string{"user"}

type AccountStore struct {
	db   *sql.DB
	dbtx database.DBTX
}

func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db, dbtx: db}
}

// InTx runs fn with a store bound to a single transaction. Every read and
// write fn performs through the given store is atomic with respect to other
// transactions.
func (s *AccountStore) InTx(ctx context.Context, fn func(*AccountStore) error) error {
	if s.db == nil {
		return fn(s)
	}
	return database.WithTx(ctx, s.db, nil, func(ctx context.Context, tx database.DBTX) error {
		return fn(&AccountStore{dbtx: tx})
	})
}

func scanAccount(scanner interface{ Scan(...any) error }) (*model.Account, error) {
	var a model.Account
	var token sql.NullString
	err := scanner.Scan(
		&a.ID, &a.Email, &a.DisplayName, &a.PasswordHash,
		&a.Confirmed, &token, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if a.ID == 0 || a.Email == "" {
		return nil, fmt.Errorf("%w: id=%d", ErrCorruptRow, a.ID)
	}
	if token.Valid {
		a.ConfirmationToken = &token.String
	}
	return &a, nil
}

const accountCols = `id, email, display_name, password_hash, confirmed, confirmation_token, created_at, updated_at`

func (s *AccountStore) Create(ctx context.Context, na model.NewAccount) (*model.Account, error) {
	var token sql.NullString
	if na.ConfirmationToken != "" {
		token = sql.NullString{String: na.ConfirmationToken, Valid: true}
	}

	result, err := s.dbtx.ExecContext(ctx,
		`INSERT INTO accounts (email, display_name, password_hash, confirmed, confirmation_token) VALUES (?, ?, ?, 0, ?)`,
		na.Email, na.DisplayName, na.PasswordHash, token,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert account: %w", ErrDuplicateIdentity)
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *AccountStore) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	row := s.dbtx.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	row := s.dbtx.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE email = ?`, email)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account by email: %w", err)
	}
	return a, nil
}

func (s *AccountStore) GetByConfirmationToken(ctx context.Context, token string) (*model.Account, error) {
	row := s.dbtx.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE confirmation_token = ?`, token)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account by confirmation token: %w", err)
	}
	return a, nil
}

// MarkConfirmed flips confirmed to true. It reports whether this call did the
// flip; false means the account was already confirmed.
func (s *AccountStore) MarkConfirmed(ctx context.Context, id int64) (bool, error) {
	result, err := s.dbtx.ExecContext(ctx,
		`UPDATE accounts SET confirmed = 1, updated_at = ? WHERE id = ? AND confirmed = 0`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("mark account confirmed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// RotateConfirmationToken replaces the outstanding confirmation token. The
// confirmed flag is left untouched.
func (s *AccountStore) RotateConfirmationToken(ctx context.Context, id int64, token string) error {
	result, err := s.dbtx.ExecContext(ctx,
		`UPDATE accounts SET confirmation_token = ?, updated_at = ? WHERE id = ?`,
		token, time.Now().UTC(), id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("rotate confirmation token: %w", ErrDuplicateIdentity)
		}
		return fmt.Errorf("rotate confirmation token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("rotate confirmation token: %w", ErrNotFound)
	}
	return nil
}

// IdentityFor returns the login identity for email, or ErrNotFound.
func (s *AccountStore) IdentityFor(ctx context.Context, email string) (model.Identity, error) {
	a, err := s.GetByEmail(ctx, email)
	if err != nil {
		return model.Identity{}, err
	}
	if a == nil {
		return model.Identity{}, fmt.Errorf("identity for %q: %w", email, ErrNotFound)
	}
	return identityOf(a), nil
}

// IdentityByID is IdentityFor keyed by account id.
func (s *AccountStore) IdentityByID(ctx context.Context, id int64) (model.Identity, error) {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return model.Identity{}, err
	}
	if a == nil {
		return model.Identity{}, fmt.Errorf("identity for account %d: %w", id, ErrNotFound)
	}
	return identityOf(a), nil
}

func identityOf(a *model.Account) model.Identity {
	return model.Identity{
		AccountID:      a.ID,
		Principal:      a.Email,
		DisplayName:    a.DisplayName,
		CredentialHash: a.PasswordHash,
		Authorities:    append([]string(nil), defaultAuthorities...),
		Enabled:        a.Confirmed,
	}
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
