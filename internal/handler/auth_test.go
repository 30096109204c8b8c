package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amity-app/amity-server/internal/auth"
	"github.com/amity-app/amity-server/internal/handler"
	"github.com/amity-app/amity-server/internal/model"
)

func newAuthHandler(t *testing.T, e *env, sender handler.CodeSender) *handler.AuthHandler {
	t.Helper()

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars")
	require.NoError(t, err)

	return handler.NewAuthHandler(nil, tokens, e.identity, e.vault, sender, e.logger)
}

func TestOTPLoginFlow(t *testing.T) {
	e := newEnv(t)
	sender := &captureSender{}
	h := newAuthHandler(t, e, sender)

	// --- Request a code ---
	req := httptest.NewRequest(http.MethodPost, "/auth/otp/request",
		bytes.NewBufferString(`{"email":"Alice@Example.com"}`))
	rr := httptest.NewRecorder()

	h.HandleOTPRequest(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "alice@example.com", sender.email, "email should be normalized before delivery")
	require.Len(t, sender.code, 6)

	// --- A wrong guess burns an attempt and reports the budget ---
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/auth/otp/verify",
		bytes.NewBufferString(`{"email":"alice@example.com","code":"0000000"}`))

	h.HandleOTPVerify(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	var errResp handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&errResp))
	assert.Equal(t, "invalid_code", errResp.Error)
	require.NotNil(t, errResp.Remaining)
	assert.Equal(t, model.OTPMaxAttempts-1, *errResp.Remaining)

	// --- The correct code signs the user in ---
	body, err := json.Marshal(map[string]string{
		"email": "alice@example.com",
		"code":  sender.code,
	})
	require.NoError(t, err)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/auth/otp/verify", bytes.NewBuffer(body))

	h.HandleOTPVerify(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var user model.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&user))
	assert.Equal(t, "alice", user.Username)

	// The response must carry a session cookie.
	var session *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.SessionCookie {
			session = c
		}
	}
	require.NotNil(t, session, "verify should set the session cookie")
	assert.True(t, session.HttpOnly)
	assert.NotEmpty(t, session.Value)
}

func TestOTPVerify_SameEmailSameAccount(t *testing.T) {
	e := newEnv(t)
	sender := &captureSender{}
	h := newAuthHandler(t, e, sender)

	login := func() model.User {
		t.Helper()

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/otp/request",
			bytes.NewBufferString(`{"email":"bob@example.com"}`))
		h.HandleOTPRequest(rr, req)
		require.Equal(t, http.StatusAccepted, rr.Code)

		body, _ := json.Marshal(map[string]string{"email": "bob@example.com", "code": sender.code})
		rr = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodPost, "/auth/otp/verify", bytes.NewBuffer(body))
		h.HandleOTPVerify(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)

		var u model.User
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&u))
		return u
	}

	first := login()
	second := login()

	assert.Equal(t, first.ID, second.ID, "the same email must resolve to the same account")
}

func TestOTPRequest_DeliveryFailure(t *testing.T) {
	e := newEnv(t)
	sender := &captureSender{err: errors.New("smtp down")}
	h := newAuthHandler(t, e, sender)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/otp/request",
		bytes.NewBufferString(`{"email":"alice@example.com"}`))

	h.HandleOTPRequest(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestOTPRequest_InvalidEmail(t *testing.T) {
	e := newEnv(t)
	h := newAuthHandler(t, e, &captureSender{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/otp/request",
		bytes.NewBufferString(`{"email":"not-an-email"}`))

	h.HandleOTPRequest(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleMe(t *testing.T) {
	e := newEnv(t)
	h := newAuthHandler(t, e, &captureSender{})
	alice := e.user(t, "google:alice", "alice")

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req = req.WithContext(auth.WithUserID(req.Context(), alice.ID))
	rr := httptest.NewRecorder()

	h.HandleMe(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var user model.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&user))
	assert.Equal(t, alice.ID, user.ID)
	assert.Equal(t, "alice", user.Username)
}

func TestHandleLogout_ClearsCookie(t *testing.T) {
	e := newEnv(t)
	h := newAuthHandler(t, e, &captureSender{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)

	h.HandleLogout(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var session *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.SessionCookie {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.Empty(t, session.Value)
	assert.Negative(t, session.MaxAge, "cookie must be expired")
}
