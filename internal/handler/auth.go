package handler

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/quizapp/internal/auth"
	"github.com/dukerupert/quizapp/internal/store"
	"golang.org/x/crypto/bcrypt"
)

type AuthHandler struct {
	renderer
	accountStore *store.AccountStore
	sessionStore *store.SessionStore
	issuer       *auth.SessionIssuer
	sessionTTL   time.Duration
	bcryptCost   int

	// compareHash is bcrypt.CompareHashAndPassword outside of tests.
	compareHash func(hash, password []byte) error
	dummyOnce   sync.Once
	dummyHash   []byte
}

func NewAuthHandler(
	as *store.AccountStore,
	ss *store.SessionStore,
	issuer *auth.SessionIssuer,
	sessionTTL time.Duration,
	bcryptCost int,
	tmpl map[string]*template.Template,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		renderer:     renderer{templates: tmpl, logger: logger},
		accountStore: as,
		sessionStore: ss,
		issuer:       issuer,
		sessionTTL:   sessionTTL,
		bcryptCost:   bcryptCost,
		compareHash:  bcrypt.CompareHashAndPassword,
	}
}

// unknownAccountHash returns a hash with the same cost as real credentials so
// unknown emails take as long to reject as wrong passwords.
func (h *AuthHandler) unknownAccountHash() []byte {
	h.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("no account has this password"), h.bcryptCost)
		if err != nil {
			h.logger.Error("generate placeholder hash", "error", err)
			return
		}
		h.dummyHash = hash
	})
	return h.dummyHash
}

// LoginPage renders the login form, with a notice for ?error= and ?logout.
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"Username": ""}
	q := r.URL.Query()
	switch {
	case q.Get("error") == "confirmation_link_was_already_used":
		data["Error"] = "login.confirmation_link_was_already_used"
	case q.Has("error"):
		data["Error"] = "login.bad_credentials"
	case q.Has("logout"):
		data["SignOutInfo"] = "login.successful_sign_out"
	}
	h.render(w, r, http.StatusOK, "login.html", data)
}

// Login checks the password and starts a session for a confirmed account.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	id, err := h.accountStore.IdentityFor(r.Context(), username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.logger.Error("load identity", "error", err)
		http.Error(w, "unable to process request", http.StatusInternalServerError)
		return
	}
	if err != nil {
		h.compareHash(h.unknownAccountHash(), []byte(password))
		h.render(w, r, http.StatusUnauthorized, "login.html", map[string]any{
			"Error":    "login.bad_credentials",
			"Username": username,
		})
		return
	}
	if h.compareHash([]byte(id.CredentialHash), []byte(password)) != nil {
		h.render(w, r, http.StatusUnauthorized, "login.html", map[string]any{
			"Error":    "login.bad_credentials",
			"Username": username,
		})
		return
	}
	if !id.Enabled {
		h.render(w, r, http.StatusForbidden, "login.html", map[string]any{
			"Error":            "login.non_confirmed_user",
			"NonConfirmedUser": true,
			"Username":         username,
		})
		return
	}

	grant, err := h.issuer.Issue(r.Context(), id)
	if err != nil {
		h.logger.Error("issue session", "account_id", id.AccountID, "error", err)
		http.Error(w, "unable to process request", http.StatusInternalServerError)
		return
	}

	setSessionCookie(w, r, grant.Session.Token, h.sessionTTL)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// Logout destroys the session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if p, ok := auth.FromContext(r.Context()); ok {
		if err := h.sessionStore.Delete(r.Context(), p.SessionID); err != nil {
			h.logger.Error("delete session", "error", err)
		}
	}

	clearSessionCookie(w)
	http.Redirect(w, r, "/login?logout", http.StatusSeeOther)
}
