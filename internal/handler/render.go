package handler

import (
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/quizapp/internal/auth"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = []string{
	"signup.html",
	"thank_you.html",
	"invalid_confirmation_link.html",
	"login.html",
	"dashboard.html",
}

var messages = map[string]string{
	"validation.not_blank":                    "must not be blank",
	"validation.valid_email":                  "must be a valid email address",
	"validation.password_min_size":            "must be at least 10 characters long",
	"validation.passwords_match":              "passwords must match",
	"signup.user_already_taken":               "An account with this email already exists.",
	"login.bad_credentials":                   "Invalid email or password.",
	"login.non_confirmed_user":                "Your account is not confirmed yet. Check your inbox or request a new confirmation email.",
	"login.confirmation_link_was_already_used": "This confirmation link was already used. Please log in.",
	"login.successful_sign_out":               "You have been signed out.",
}

// Message resolves a message key to user-facing text. Unknown keys are
// returned as is.
func Message(key string) string {
	if m, ok := messages[key]; ok {
		return m
	}
	return key
}

// ParseTemplates parses one template set per page, each with the shared
// layout, so that every page can define its own "content" block.
func ParseTemplates() (map[string]*template.Template, error) {
	funcs := template.FuncMap{"msg": Message}
	templates := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		tmpl, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", page, err)
		}
		templates[page] = tmpl
	}
	return templates, nil
}

type renderer struct {
	templates map[string]*template.Template
	logger    *slog.Logger
}

func (rd renderer) render(w http.ResponseWriter, r *http.Request, status int, name string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["Year"] = time.Now().Year()
	if p, ok := auth.FromContext(r.Context()); ok {
		data["Principal"] = p
	}

	tmpl, ok := rd.templates[name]
	if !ok {
		rd.logger.Error("template not found", "name", name)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "layout.html", data); err != nil {
		rd.logger.Error("template render", "name", name, "error", err)
	}
}
