package handler

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/dukerupert/quizapp/internal/auth"
	"github.com/dukerupert/quizapp/internal/confirmation"
)

type DashboardHandler struct {
	renderer
	service *confirmation.Service
}

func NewDashboardHandler(svc *confirmation.Service, tmpl map[string]*template.Template, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{
		renderer: renderer{templates: tmpl, logger: logger},
		service:  svc,
	}
}

func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	user, err := h.service.CurrentUser(r.Context(), p.Email)
	if err != nil {
		h.logger.Error("current user", "account_id", p.AccountID, "error", err)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	h.render(w, r, http.StatusOK, "dashboard.html", map[string]any{"User": user})
}
