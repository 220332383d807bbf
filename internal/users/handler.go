package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/steward-admin/steward-admin/internal/shared"
	"github.com/steward-admin/steward-admin/internal/view"
)

const usersIndexPath = "/admin-dashboard/users"

// Handler manages user management endpoints. The user screens carry no
// per-action capability checks; the super-admin route tier is the only gate,
// matching the original controller.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	sessions  *shared.SessionManager
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, sessions *shared.SessionManager) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, sessions: sessions}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listUsers)
	r.Get("/create", h.showCreateForm)
	r.Post("/", h.createUser)
	r.Get("/{id}", h.showUser)
	r.Get("/{id}/edit", h.showEditForm)
	r.Put("/{id}", h.updateUser)
	r.Patch("/{id}", h.updateUser)
	r.Put("/{id}/status", h.updateStatus)
	r.Delete("/{id}", h.deleteUser)
}

type formErrors map[string]string

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		h.render(w, r, "pages/users/list.html", map[string]any{"Errors": formErrors{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/users/list.html", map[string]any{"Users": list}, http.StatusOK)
}

func (h *Handler) showCreateForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/users/form.html", map[string]any{
		"Form":       CreateUserRequest{},
		"Errors":     formErrors{},
		"SubmitPath": usersIndexPath,
	}, http.StatusOK)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := CreateUserRequest{
		Name:                 r.PostFormValue("name"),
		Email:                r.PostFormValue("email"),
		Password:             r.PostFormValue("password"),
		PasswordConfirmation: r.PostFormValue("password_confirmation"),
	}
	actorID, _ := shared.PrincipalID(r.Context())
	_, err := h.service.Create(r.Context(), form, actorID)
	if err == nil {
		h.redirectWithFlash(w, r, usersIndexPath, "success", "User created successfully!")
		return
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		// Never echo the password fields back into the form.
		form.Password = ""
		form.PasswordConfirmation = ""
		h.render(w, r, "pages/users/form.html", map[string]any{
			"Form":       form,
			"Errors":     formErrors(verr.Fields),
			"SubmitPath": usersIndexPath,
		}, http.StatusUnprocessableEntity)
		return
	}
	h.logger.Error("create user failed", slog.Any("error", err))
	h.redirectWithFlash(w, r, usersIndexPath, "error", shared.UserSafeMessage(err))
}

func (h *Handler) showUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	profile, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.lookupFailed(w, r, err)
		return
	}
	h.render(w, r, "pages/users/show.html", map[string]any{"User": profile}, http.StatusOK)
}

func (h *Handler) showEditForm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	profile, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.lookupFailed(w, r, err)
		return
	}
	h.render(w, r, "pages/users/form.html", map[string]any{
		"User":       profile,
		"Form":       UpdateUserRequest{Name: profile.Name, Email: profile.Email},
		"Errors":     formErrors{},
		"SubmitPath": usersIndexPath + "/" + strconv.FormatInt(id, 10),
	}, http.StatusOK)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := UpdateUserRequest{
		Name:                 r.PostFormValue("name"),
		Email:                r.PostFormValue("email"),
		Password:             r.PostFormValue("password"),
		PasswordConfirmation: r.PostFormValue("password_confirmation"),
	}
	actorID, _ := shared.PrincipalID(r.Context())
	err := h.service.Update(r.Context(), id, form, actorID)
	if err == nil {
		h.redirectWithFlash(w, r, usersIndexPath, "success", "User updated successfully!")
		return
	}

	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		form.Password = ""
		form.PasswordConfirmation = ""
		h.render(w, r, "pages/users/form.html", map[string]any{
			"Form":       form,
			"Errors":     formErrors(verr.Fields),
			"SubmitPath": usersIndexPath + "/" + strconv.FormatInt(id, 10),
		}, http.StatusUnprocessableEntity)
	case errors.Is(err, shared.ErrNotFound):
		h.redirectWithFlash(w, r, usersIndexPath, "error", "User not found.")
	default:
		h.logger.Error("update user failed", slog.Any("error", err))
		h.redirectWithFlash(w, r, usersIndexPath, "error", shared.UserSafeMessage(err))
	}
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	status := r.PostFormValue("status")
	editPath := usersIndexPath + "/" + strconv.FormatInt(id, 10) + "/edit"

	actorID, _ := shared.PrincipalID(r.Context())
	err := h.service.UpdateStatus(r.Context(), id, status, actorID)
	var verr *ValidationError
	switch {
	case err == nil:
		action := "unblocked"
		if status == StatusBlocked {
			action = "blocked"
		}
		h.redirectWithFlash(w, r, editPath, "success", "User "+action+" successfully!")
	case errors.Is(err, shared.ErrForbidden):
		h.redirectWithFlash(w, r, editPath, "error", "You cannot block your own account.")
	case errors.As(err, &verr):
		h.redirectWithFlash(w, r, editPath, "error", verr.Fields["status"])
	case errors.Is(err, shared.ErrNotFound):
		h.redirectWithFlash(w, r, usersIndexPath, "error", "User not found.")
	default:
		h.logger.Error("update user status failed", slog.Any("error", err))
		h.redirectWithFlash(w, r, editPath, "error", shared.UserSafeMessage(err))
	}
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	actorID, _ := shared.PrincipalID(r.Context())
	user, err := h.service.Delete(r.Context(), id, actorID)
	switch {
	case err == nil:
		h.redirectWithFlash(w, r, usersIndexPath, "success", "User "+user.Name+" deleted successfully!")
	case errors.Is(err, shared.ErrForbidden):
		h.redirectWithFlash(w, r, usersIndexPath, "error", "You cannot delete your own account.")
	case errors.Is(err, shared.ErrNotFound):
		h.redirectWithFlash(w, r, usersIndexPath, "error", "User not found.")
	default:
		h.logger.Error("delete user failed", slog.Any("error", err))
		h.redirectWithFlash(w, r, usersIndexPath, "error", shared.UserSafeMessage(err))
	}
}

func (h *Handler) lookupFailed(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		h.redirectWithFlash(w, r, usersIndexPath, "error", "User not found.")
		return
	}
	h.logger.Error("load user failed", slog.Any("error", err))
	h.redirectWithFlash(w, r, usersIndexPath, "error", shared.UserSafeMessage(err))
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.redirectWithFlash(w, r, usersIndexPath, "error", "User not found.")
		return 0, false
	}
	return id, true
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Users", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
