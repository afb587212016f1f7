package handler

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/quizapp/internal/auth"
	"github.com/dukerupert/quizapp/internal/confirmation"
)

type ConfirmHandler struct {
	renderer
	service    *confirmation.Service
	issuer     *auth.SessionIssuer
	sessionTTL time.Duration
	baseURL    string
}

func NewConfirmHandler(
	svc *confirmation.Service,
	issuer *auth.SessionIssuer,
	sessionTTL time.Duration,
	baseURL string,
	tmpl map[string]*template.Template,
	logger *slog.Logger,
) *ConfirmHandler {
	return &ConfirmHandler{
		renderer:   renderer{templates: tmpl, logger: logger},
		service:    svc,
		issuer:     issuer,
		sessionTTL: sessionTTL,
		baseURL:    baseURL,
	}
}

// Confirm redeems a confirmation link and logs the account in.
func (h *ConfirmHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.Confirm(r.Context(), r.PathValue("token"))
	switch {
	case errors.Is(err, confirmation.ErrInvalidCode):
		h.render(w, r, http.StatusOK, "invalid_confirmation_link.html", nil)
		return
	case errors.Is(err, confirmation.ErrCodeAlreadyUsed):
		http.Redirect(w, r, "/login?error=confirmation_link_was_already_used", http.StatusSeeOther)
		return
	case err != nil:
		h.logger.Error("confirm account", "error", err)
		http.Error(w, "unable to process request", http.StatusInternalServerError)
		return
	}

	// The only caller of EstablishSession: the account was confirmed by
	// this request.
	grant, err := h.issuer.EstablishSession(r.Context(), account.Email)
	if err != nil {
		h.logger.Error("establish session after confirmation", "account_id", account.ID, "error", err)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	setSessionCookie(w, r, grant.Session.Token, h.sessionTTL)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// ResendConfirmation mails a fresh confirmation link to the form's username.
func (h *ConfirmHandler) ResendConfirmation(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}

	email := strings.TrimSpace(r.FormValue("username"))
	err := h.service.ResendConfirmation(r.Context(), email, BaseURL(r, h.baseURL))
	switch {
	case err == nil:
		http.Redirect(w, r, "/thank-you", http.StatusSeeOther)
	case errors.Is(err, confirmation.ErrAccountNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, confirmation.ErrDelivery):
		http.Error(w, "unable to send confirmation email", http.StatusBadGateway)
	default:
		h.logger.Error("resend confirmation", "error", err)
		http.Error(w, "unable to process request", http.StatusInternalServerError)
	}
}
