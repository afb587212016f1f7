package handler

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/quizapp/internal/confirmation"
	"github.com/dukerupert/quizapp/internal/store"
	"golang.org/x/crypto/bcrypt"
)

type SignupHandler struct {
	renderer
	service    *confirmation.Service
	baseURL    string
	bcryptCost int
}

func NewSignupHandler(
	svc *confirmation.Service,
	baseURL string,
	bcryptCost int,
	tmpl map[string]*template.Template,
	logger *slog.Logger,
) *SignupHandler {
	return &SignupHandler{
		renderer:   renderer{templates: tmpl, logger: logger},
		service:    svc,
		baseURL:    baseURL,
		bcryptCost: bcryptCost,
	}
}

// SignupPage renders an empty signup form.
func (h *SignupHandler) SignupPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "signup.html", map[string]any{
		"Form":       confirmation.SignupForm{},
		"Violations": confirmation.Violations{},
	})
}

// Signup validates the form, creates the account and sends the
// confirmation email.
func (h *SignupHandler) Signup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}

	form := confirmation.SignupForm{
		Username: strings.TrimSpace(r.FormValue("username")),
		Name:     strings.TrimSpace(r.FormValue("name")),
		Pass:     r.FormValue("pass"),
		Confirm:  r.FormValue("confirm"),
	}
	// Passwords are never echoed back into the form.
	redisplay := confirmation.SignupForm{Username: form.Username, Name: form.Name}

	if v := confirmation.ValidateSignup(form); len(v) > 0 {
		h.render(w, r, http.StatusUnprocessableEntity, "signup.html", map[string]any{
			"Form":       redisplay,
			"Violations": v,
		})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(form.Pass), h.bcryptCost)
	if err != nil {
		h.logger.Error("hash password", "error", err)
		http.Error(w, "unable to process request", http.StatusInternalServerError)
		return
	}

	_, err = h.service.Signup(r.Context(), confirmation.SignupInput{
		Email:        form.Username,
		DisplayName:  form.Name,
		PasswordHash: string(hash),
	}, BaseURL(r, h.baseURL))
	switch {
	case err == nil:
	case errors.Is(err, confirmation.ErrAccountAlreadyExists), errors.Is(err, store.ErrDuplicateIdentity):
		h.render(w, r, http.StatusConflict, "signup.html", map[string]any{
			"Form":       redisplay,
			"Violations": confirmation.Violations{},
			"Error":      "signup.user_already_taken",
		})
		return
	case errors.Is(err, confirmation.ErrDelivery):
		// The account exists; the thank-you flow lets the user ask for a
		// new email.
		h.logger.Warn("signup without confirmation email", "error", err)
	default:
		h.logger.Error("signup", "error", err)
		http.Error(w, "unable to process request", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/thank-you", http.StatusSeeOther)
}

func (h *SignupHandler) ThankYou(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "thank_you.html", nil)
}
