package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/amity-app/amity-server/internal/auth"
	"github.com/amity-app/amity-server/internal/model"
	"github.com/amity-app/amity-server/internal/service"
)

// CodeSender delivers a one-time login code to an email address.
//
// The core never sends mail itself — the plaintext code exists exactly
// once, in the IssueOTP return value, and delivery is the deployment's
// problem (SMTP relay, transactional mail API, carrier pigeon).
type CodeSender interface {
	Send(ctx context.Context, email, code string) error
}

// LogCodeSender is the development CodeSender: it writes the code to the
// log instead of sending mail. Never use it in production.
type LogCodeSender struct {
	Logger *slog.Logger
}

func (s *LogCodeSender) Send(_ context.Context, email, code string) error {
	s.Logger.Info("one-time code issued (dev mode — would be emailed)",
		slog.String("email", email),
		slog.String("code", code),
	)
	return nil
}

// AuthHandler manages both sign-in paths and session management.
//
// HANDLER RESPONSIBILITIES:
//   - HandleGoogleLogin    → redirect the browser to Google's consent page
//   - HandleGoogleCallback → receive the code, resolve the identity, issue JWT
//   - HandleOTPRequest     → email a one-time login code
//   - HandleOTPVerify      → check the code, resolve the identity, issue JWT
//   - HandleLogout         → clear the session cookie
//   - HandleMe             → return the logged-in user's profile
//
// Both paths converge on the same identity bridge: a verified identity
// (provider subject or proven email) resolves to exactly one internal
// account, created on first contact.
type AuthHandler struct {
	google   *auth.Provider // nil when OAuth is not configured
	tokens   *auth.TokenService
	identity *service.IdentityService
	vault    *service.VaultService
	sender   CodeSender
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler. All dependencies are injected;
// the handler has no knowledge of how they're constructed.
func NewAuthHandler(
	google *auth.Provider,
	tokens *auth.TokenService,
	identity *service.IdentityService,
	vault *service.VaultService,
	sender CodeSender,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		google:   google,
		tokens:   tokens,
		identity: identity,
		vault:    vault,
		sender:   sender,
		logger:   logger,
	}
}

// sessionCookieTTL mirrors the JWT expiry so the cookie and the token
// inside it die together.
const sessionCookieTTL = 7 * 24 * time.Hour

// HandleGoogleLogin redirects the user to Google's consent page.
//
// HTTP: GET /auth/login
//
// CSRF PROTECTION VIA STATE:
// We generate a random state string and store it in a short-lived cookie.
// When Google calls back, HandleGoogleCallback verifies the state matches,
// which proves the flow was initiated by this server and not an attacker.
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.google.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGoogleCallback completes the OAuth login flow.
//
// HTTP: GET /auth/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a verified Google identity
//  3. Resolve the identity to an internal account (created on first login)
//  4. Issue a JWT session token in an HttpOnly cookie
//  5. Redirect to the app home page
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// The state cookie is single-use.
	http.SetCookie(w, &http.Cookie{
		Name:   "oauth_state",
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization",
			slog.String("error", errParam),
		)
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ident, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	// Username hint: prefer the display name, fall back to the email's
	// local part. The identity service normalizes whatever we hand it.
	hint := ident.Name
	if hint == "" {
		hint, _, _ = strings.Cut(ident.Email, "@")
	}

	user, err := h.identity.ResolveOrCreate(r.Context(), ident.Subject, ident.Email, ident.Name, hint, ident.Picture)
	if err != nil {
		h.logger.Error("auth callback: identity resolution failed",
			slog.String("subject", ident.Subject),
			slog.String("error", err.Error()),
		)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	h.logger.Info("user authenticated",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)

	if !h.issueSession(w, user.ID) {
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// otpRequestBody is the request body for HandleOTPRequest.
type otpRequestBody struct {
	Email string `json:"email"`
}

// HandleOTPRequest issues a one-time login code and hands it to the
// CodeSender for delivery.
//
// HTTP: POST /auth/otp/request
// REQUEST BODY: {"email": "alice@example.com"}
//
// The response never reveals whether the address belongs to an account —
// it is 202 regardless, so the endpoint cannot be used to enumerate
// registered emails.
func (h *AuthHandler) HandleOTPRequest(w http.ResponseWriter, r *http.Request) {
	var body otpRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.Warn("otp request: invalid JSON", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	code, err := h.vault.IssueOTP(r.Context(), body.Email, model.PurposeLogin, 0)
	if err != nil {
		writeError(w, err)
		return
	}

	email := strings.ToLower(strings.TrimSpace(body.Email))
	if err := h.sender.Send(r.Context(), email, code); err != nil {
		// The code is persisted but undeliverable. Surface the failure —
		// a silent 202 here would strand the user with no way to log in.
		h.logger.Error("otp request: delivery failed",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:   "delivery_failed",
			Message: "could not send the code, try again",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "if the address is valid, a code is on its way",
	})
}

// otpVerifyBody is the request body for HandleOTPVerify.
type otpVerifyBody struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// HandleOTPVerify checks a submitted login code and, on success, signs
// the user in.
//
// HTTP: POST /auth/otp/verify
// REQUEST BODY: {"email": "alice@example.com", "code": "482913"}
//
// A verified email is an identity in its own right: accounts created via
// this path carry a synthetic "email:" subject, so the same address
// always resolves to the same account on subsequent logins.
func (h *AuthHandler) HandleOTPVerify(w http.ResponseWriter, r *http.Request) {
	var body otpVerifyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.Warn("otp verify: invalid JSON", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	if err := h.vault.VerifyOTP(r.Context(), body.Email, model.PurposeLogin, body.Code); err != nil {
		writeError(w, err)
		return
	}

	email := strings.ToLower(strings.TrimSpace(body.Email))
	hint, _, _ := strings.Cut(email, "@")

	user, err := h.identity.ResolveOrCreate(r.Context(), "email:"+email, email, hint, hint, "")
	if err != nil {
		h.logger.Error("otp verify: identity resolution failed",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	h.logger.Info("user authenticated via email code",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)

	if !h.issueSession(w, user.ID) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "could not create a session",
		})
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// issueSession mints a JWT for userID and sets it as the session cookie.
// Returns false (after logging) if signing fails.
//
// HttpOnly keeps the token away from injected scripts; SameSite=Lax means
// it rides along on top-level navigations but not cross-site POSTs.
// Secure should be true behind HTTPS — left off for local dev.
func (h *AuthHandler) issueSession(w http.ResponseWriter, userID string) bool {
	tokenStr, err := h.tokens.Generate(userID)
	if err != nil {
		h.logger.Error("token generation failed", slog.String("error", err.Error()))
		return false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    tokenStr,
		Path:     "/",
		MaxAge:   int(sessionCookieTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		// Secure: true, // enable in production (requires HTTPS)
	})
	return true
}

// HandleLogout clears the session cookie, effectively logging the user out.
//
// HTTP: POST /auth/logout
//
// POST, not GET: logout is a state-changing operation, and GET would be
// vulnerable to CSRF and browser pre-fetching. Since sessions are
// stateless JWTs, "logout" just deletes the client-side cookie; the token
// stays technically valid until expiry but the browser can no longer
// send it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the currently authenticated user's profile.
//
// HTTP: GET /api/me
// Auth: Required (RequireAuth middleware sets userID in context)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		// Should never happen on a RequireAuth-protected route, but be safe.
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	user, err := h.identity.GetByID(r.Context(), userID)
	if err != nil {
		h.logger.Error("HandleMe: user lookup failed", slog.String("userID", userID))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
