package auth

import (
	"context"
	"fmt"

	"github.com/dukerupert/quizapp/internal/model"
)

// IdentityLookup resolves an email to the login mechanism's identity.
type IdentityLookup interface {
	IdentityFor(ctx context.Context, email string) (model.Identity, error)
}

// SessionCreator persists a new session for an account.
type SessionCreator interface {
	Create(ctx context.Context, accountID int64) (*model.Session, error)
}

// Grant is the outcome of establishing a session: the persisted session the
// caller hands to the client, and the principal it authenticates.
type Grant struct {
	Session   *model.Session
	Principal Principal
}

// SessionIssuer establishes sessions for identities that are already known
// to be good.
type SessionIssuer struct {
	identities IdentityLookup
	sessions   SessionCreator
}

func NewSessionIssuer(identities IdentityLookup, sessions SessionCreator) *SessionIssuer {
	return &SessionIssuer{identities: identities, sessions: sessions}
}

// EstablishSession logs email in WITHOUT checking a password.
//
// Dangerous: call it only right after a successful account confirmation for
// this exact email. It must not be reachable from any other request path.
func (i *SessionIssuer) EstablishSession(ctx context.Context, email string) (*Grant, error) {
	id, err := i.identities.IdentityFor(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}

	return i.issue(ctx, id)
}

// Issue creates a session for an identity whose credentials the caller has
// already verified.
func (i *SessionIssuer) Issue(ctx context.Context, id model.Identity) (*Grant, error) {
	return i.issue(ctx, id)
}

func (i *SessionIssuer) issue(ctx context.Context, id model.Identity) (*Grant, error) {
	sess, err := i.sessions.Create(ctx, id.AccountID)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &Grant{
		Session: sess,
		Principal: Principal{
			AccountID:   id.AccountID,
			Email:       id.Principal,
			DisplayName: id.DisplayName,
			Authorities: id.Authorities,
			SessionID:   sess.ID,
		},
	}, nil
}
