package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jjudge-oj/accounts/internal/services"
	"github.com/jjudge-oj/accounts/internal/store"
	"github.com/jjudge-oj/accounts/types"
	"github.com/rs/zerolog"
)

// UserHandler serves account management and the caller's own profile.
type UserHandler struct {
	users  *services.UserService
	logger zerolog.Logger
}

func NewUserHandler(users *services.UserService, logger zerolog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// UserRouter registers /users routes. Every route requires a bearer token.
func UserRouter(r chi.Router, h *UserHandler) {
	r.Get("/", h.ListUsers)
	r.Post("/", h.CreateUser)
	r.Route("/{userID}", func(r chi.Router) {
		r.Get("/", h.GetUser)
		r.Put("/", h.UpdateUser)
		r.Delete("/", h.DeleteUser)
	})
}

// ProfileRouter registers /profile routes.
func ProfileRouter(r chi.Router, h *UserHandler) {
	r.Get("/", h.Profile)
	r.Put("/", h.UpdateProfile)
}

type CreateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateUserRequest carries any subset of the mutable fields.
type UpdateUserRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

func (req UpdateUserRequest) patch() services.UserPatch {
	return services.UserPatch{Name: req.Name, Email: req.Email, Password: req.Password}
}

type UserListResponse struct {
	Users   []types.User `json:"users"`
	Page    int          `json:"page"`
	PerPage int          `json:"per_page"`
	Total   int          `json:"total"`
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, perPage, offset, fields := parsePagination(r)
	if len(fields) > 0 {
		writeValidation(w, fields)
		return
	}

	users, total, err := h.users.List(r.Context(), offset, perPage)
	if err != nil {
		h.logger.Error().Err(err).Msg("list users failed")
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	writeSuccess(w, http.StatusOK, "", UserListResponse{
		Users:   users,
		Page:    page,
		PerPage: perPage,
		Total:   total,
	})
}

func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.users.Create(r.Context(), services.NewUser(req))
	if err != nil {
		if writeServiceError(w, err) {
			return
		}
		h.logger.Error().Err(err).Msg("create user failed")
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	writeSuccess(w, http.StatusCreated, "user created", UserResponse{User: user})
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, err, id)
		return
	}
	writeSuccess(w, http.StatusOK, "", UserResponse{User: user})
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	h.update(w, r, id, "user updated")
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	if err := h.users.Delete(r.Context(), id); err != nil {
		h.writeLookupError(w, err, id)
		return
	}
	writeSuccess(w, http.StatusOK, "user deleted", nil)
}

// Profile returns the authenticated caller.
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	writeSuccess(w, http.StatusOK, "", UserResponse{User: p.User})
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	h.update(w, r, p.User.ID, "profile updated")
}

func (h *UserHandler) update(w http.ResponseWriter, r *http.Request, id int64, message string) {
	var req UpdateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.users.Update(r.Context(), id, req.patch())
	if err != nil {
		if writeServiceError(w, err) {
			return
		}
		h.writeLookupError(w, err, id)
		return
	}
	writeSuccess(w, http.StatusOK, message, UserResponse{User: user})
}

func (h *UserHandler) writeLookupError(w http.ResponseWriter, err error, id int64) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	h.logger.Error().Err(err).Int64("user_id", id).Msg("user lookup failed")
	writeError(w, http.StatusInternalServerError, "internal server error")
}
