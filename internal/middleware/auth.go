package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/quizapp/internal/auth"
	"github.com/dukerupert/quizapp/internal/store"
)

// RequireAuth validates the session cookie and puts the account's Principal
// in the request context. Lookup failures other than a missing account are
// logged before redirecting.
func RequireAuth(sessionStore *store.SessionStore, accountStore *store.AccountStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(auth.SessionCookie)
			if err != nil || cookie.Value == "" {
				redirectToLogin(w, r)
				return
			}

			sess, err := sessionStore.GetByToken(r.Context(), cookie.Value)
			if err != nil {
				logger.ErrorContext(r.Context(), "load session", "error", err)
				redirectToLogin(w, r)
				return
			}
			if sess == nil {
				redirectToLogin(w, r)
				return
			}

			id, err := accountStore.IdentityByID(r.Context(), sess.AccountID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				logger.ErrorContext(r.Context(), "load identity", "account_id", sess.AccountID, "error", err)
			}
			if err != nil || !id.Enabled {
				redirectToLogin(w, r)
				return
			}

			p := auth.Principal{
				AccountID:   id.AccountID,
				Email:       id.Principal,
				DisplayName: id.DisplayName,
				Authorities: id.Authorities,
				SessionID:   sess.ID,
			}

			ctx := auth.WithPrincipal(r.Context(), p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
