package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jjudge-oj/accounts/internal/services"
	"github.com/jjudge-oj/accounts/types"
	"github.com/rs/zerolog"
)

// AuthHandler serves registration, login, logout and email verification.
type AuthHandler struct {
	auth         *services.AuthService
	users        *services.UserService
	verification *services.VerificationService
	logger       zerolog.Logger
}

func NewAuthHandler(
	auth *services.AuthService,
	users *services.UserService,
	verification *services.VerificationService,
	logger zerolog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:         auth,
		users:        users,
		verification: verification,
		logger:       logger,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, h *AuthHandler, requireAuth func(http.Handler) http.Handler) {
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/email/verify", h.VerifyEmail)

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/logout", h.Logout)
		r.Post("/email/verification-notification", h.SendVerification)
	})
}

type RegisterRequest struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

type AuthResponse struct {
	User  types.User `json:"user"`
	Token string     `json:"token"`
}

type UserResponse struct {
	User types.User `json:"user"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	in := services.RegisterInput{Name: req.Name, Email: req.Email, Password: req.Password}
	if req.Password != req.PasswordConfirmation {
		verr := &services.ValidationError{}
		var inputErr *services.ValidationError
		if errors.As(h.users.ValidateNewUser(services.NewUser(in)), &inputErr) {
			verr = inputErr
		}
		verr.Add("password", "The password confirmation does not match.")
		writeValidation(w, verr.Fields)
		return
	}

	user, token, err := h.auth.Register(r.Context(), in)
	if err != nil {
		if writeServiceError(w, err) {
			return
		}
		h.logger.Error().Err(err).Msg("register failed")
		writeError(w, http.StatusInternalServerError, "failed to register user")
		return
	}

	writeSuccess(w, http.StatusCreated, "user registered", AuthResponse{User: user, Token: token})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fields := map[string][]string{}
	if strings.TrimSpace(req.Email) == "" {
		fields["email"] = []string{"The email field is required."}
	}
	if req.Password == "" {
		fields["password"] = []string{"The password field is required."}
	}
	if len(fields) > 0 {
		writeValidation(w, fields)
		return
	}

	user, token, err := h.auth.Login(r.Context(), services.LoginInput{
		Email:         req.Email,
		Password:      req.Password,
		SourceAddress: clientIP(r),
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.logger.Error().Err(err).Msg("login failed")
		writeError(w, http.StatusInternalServerError, "failed to log in")
		return
	}

	writeSuccess(w, http.StatusOK, "logged in", AuthResponse{User: user, Token: token})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	if !h.auth.Logout(r.Context(), p.User, p.Token) {
		writeError(w, http.StatusInternalServerError, "failed to log out")
		return
	}
	writeSuccess(w, http.StatusOK, "logged out", nil)
}

func (h *AuthHandler) SendVerification(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	if _, err := h.verification.Request(r.Context(), p.User); err != nil {
		if errors.Is(err, services.ErrAlreadyVerified) {
			writeError(w, http.StatusConflict, "email already verified")
			return
		}
		h.logger.Error().Err(err).Int64("user_id", p.User.ID).Msg("verification request failed")
		writeError(w, http.StatusInternalServerError, "failed to send verification")
		return
	}
	writeSuccess(w, http.StatusAccepted, "verification sent", nil)
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeValidation(w, map[string][]string{"token": {"The token field is required."}})
		return
	}

	user, err := h.verification.Confirm(r.Context(), req.Token)
	if err != nil {
		if errors.Is(err, services.ErrInvalidVerificationToken) {
			writeValidation(w, map[string][]string{"token": {"The verification link is invalid or has expired."}})
			return
		}
		h.logger.Error().Err(err).Msg("email verification failed")
		writeError(w, http.StatusInternalServerError, "failed to verify email")
		return
	}
	writeSuccess(w, http.StatusOK, "email verified", UserResponse{User: user})
}
