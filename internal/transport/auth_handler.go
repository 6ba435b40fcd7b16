package transport

import (
	"errors"
	"net/http"
	"time"

	"shelfdesk/internal/domain"
	"shelfdesk/internal/middleware"
	"shelfdesk/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// LoginRequest represents the login request payload
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Next     string `json:"next,omitempty"`
}

// RegisterRequest represents the registration request payload
type RegisterRequest struct {
	Name            string `json:"name" validate:"required,min=2"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=6,mixedcase"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

// ResetPasswordRequest represents the password reset request payload
type ResetPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// SessionResponse describes the current auth state
type SessionResponse struct {
	State     domain.AuthState `json:"state"`
	User      *domain.User     `json:"user,omitempty"`
	ExpiresAt *time.Time       `json:"expiresAt,omitempty"`
}

// LoginResponse is returned after a successful sign-in
type LoginResponse struct {
	User      domain.User `json:"user"`
	ExpiresAt *time.Time  `json:"expiresAt,omitempty"`
	Redirect  string      `json:"redirect"`
}

// RegisterResponse is returned after a successful registration
type RegisterResponse struct {
	User                *domain.User `json:"user,omitempty"`
	PendingConfirmation bool         `json:"pendingConfirmation"`
	Message             string       `json:"message"`
}

// AuthHandler handles HTTP requests for session operations
type AuthHandler struct {
	gateway service.SessionGateway
	logger  *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(gateway service.SessionGateway, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		gateway: gateway,
		logger:  logger,
	}
}

// RegisterRoutes registers all auth routes.
// Sign-in, sign-up and reset are public (anonymous only); sign-out is protected.
func (h *AuthHandler) RegisterRoutes(r chi.Router, requireSession, requireAnonymous, rateLimit func(http.Handler) http.Handler) {
	r.Route("/api/auth", func(r chi.Router) {
		r.Get("/session", h.Session)

		r.Group(func(r chi.Router) {
			r.Use(requireAnonymous, rateLimit)
			r.Post("/login", h.Login)
			r.Post("/register", h.Register)
			r.Post("/reset-password", h.ResetPassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireSession)
			r.Post("/logout", h.Logout)
		})
	})
}

// Session reports the auth state and the signed-in user
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	resp := SessionResponse{State: h.gateway.State()}
	if session := h.gateway.CurrentSession(); session != nil {
		user := session.User
		resp.User = &user
		resp.ExpiresAt = expiresAt(session)
	}
	middleware.RespondWithJSON(w, http.StatusOK, resp)
}

// Login handles sign-in with email and password
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	session, err := h.gateway.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondAuthError(w, "Login failed", err)
		return
	}

	h.logger.Info("User signed in", zap.String("user_id", session.User.ID))
	middleware.RespondWithJSON(w, http.StatusOK, LoginResponse{
		User:      session.User,
		ExpiresAt: expiresAt(session),
		Redirect:  middleware.SafeRedirect(req.Next),
	})
}

// Register handles sign-up
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	result, err := h.gateway.SignUp(r.Context(), req.Email, req.Password, map[string]any{
		"full_name": req.Name,
	})
	if err != nil {
		h.respondAuthError(w, "Registration failed", err)
		return
	}

	resp := RegisterResponse{
		User:                result.User,
		PendingConfirmation: result.PendingConfirmation,
		Message:             "Account created.",
	}
	if result.PendingConfirmation {
		resp.Message = "Account created. Check your email to confirm it before signing in."
	}

	h.logger.Info("User registered", zap.Bool("pending_confirmation", result.PendingConfirmation))
	middleware.RespondWithJSON(w, http.StatusCreated, resp)
}

// ResetPassword starts the password reset flow
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	if err := h.gateway.ResetPassword(r.Context(), req.Email); err != nil {
		h.respondAuthError(w, "Password reset failed", err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusAccepted, map[string]string{
		"message": "If the email is registered, a reset link is on its way.",
	})
}

// Logout handles sign-out
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.gateway.SignOut(r.Context()); err != nil {
		h.respondAuthError(w, "Logout failed", err)
		return
	}

	h.logger.Info("User signed out")
	middleware.RespondNoContent(w)
}

// respondAuthError maps a translated auth error to a status code
func (h *AuthHandler) respondAuthError(w http.ResponseWriter, msg string, err error) {
	var authErr *service.AuthError
	if !errors.As(err, &authErr) {
		h.logger.Error(msg, zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadGateway, "identity provider unavailable")
		return
	}

	message := authErr.Message
	status := http.StatusBadGateway
	switch authErr.Kind {
	case service.AuthErrorUnknown:
		// the provider answered but with a message we have no translation for
		var pm interface{ ProviderMessage() string }
		if errors.As(authErr.Unwrap(), &pm) {
			status = http.StatusBadRequest
		} else {
			message = "identity provider unavailable"
		}
	case service.AuthErrorInvalidCredentials:
		status = http.StatusUnauthorized
	case service.AuthErrorEmailNotConfirmed:
		status = http.StatusForbidden
	case service.AuthErrorUserAlreadyRegistered:
		status = http.StatusConflict
	case service.AuthErrorWeakPassword, service.AuthErrorInvalidEmail:
		status = http.StatusBadRequest
	case service.AuthErrorRateLimited:
		status = http.StatusTooManyRequests
	}

	if status == http.StatusBadGateway {
		h.logger.Warn(msg, zap.Error(err))
	} else {
		h.logger.Debug(msg, zap.String("kind", string(authErr.Kind)))
	}
	middleware.RespondWithErrorDetails(w, status, message, map[string]any{
		"kind": authErr.Kind,
	})
}

func expiresAt(session *domain.Session) *time.Time {
	if session == nil || session.ExpiresAt.IsZero() {
		return nil
	}
	t := session.ExpiresAt
	return &t
}
