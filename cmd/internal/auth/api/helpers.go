package authapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/identity"
	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/auth/session"
)

// Error codes returned in {"error":{"code","message"}}.
const (
	codeInvalidJSON        = "invalid_json"
	codeInvalidRequest     = "invalid_request"
	codeInvalidCredentials = "invalid_credentials"
	codeUnauthorized       = "unauthorized"
	codeRateLimited        = "rate_limited"
	codeServerError        = "server_error"
)

var (
	errEmptyBody   = errors.New("empty body")
	errTrailing    = errors.New("extra data after login object")
	errMissingCred = errors.New("username and password are required")
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

// respond writes v as JSON. Every body here carries identity or session
// state, so nothing is cacheable.
func respond(w http.ResponseWriter, status int, v any) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, status int, code, msg string) {
	respond(w, status, errorResponse{Error: apiError{Code: code, Message: msg}})
}

func failInternal(w http.ResponseWriter) {
	fail(w, http.StatusInternalServerError, codeServerError, "internal error")
}

func failUnauthorized(w http.ResponseWriter, msg string) {
	fail(w, http.StatusUnauthorized, codeUnauthorized, msg)
}

// readLogin decodes exactly one login object of at most maxBytes. A decode
// failure yields codeInvalidJSON, missing fields codeInvalidRequest.
func readLogin(w http.ResponseWriter, r *http.Request, maxBytes int64) (loginRequest, string, error) {
	var req loginRequest
	if r.Body == nil || r.Body == http.NoBody {
		return req, codeInvalidJSON, errEmptyBody
	}
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, codeInvalidJSON, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return req, codeInvalidJSON, errTrailing
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return req, codeInvalidRequest, errMissingCred
	}
	return req, "", nil
}

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
	}
}

func toSessionResponse(issued session.Issued) sessionResponse {
	return sessionResponse{
		SessionID:        issued.SessionID,
		Platform:         string(issued.Platform),
		AccessToken:      issued.AccessToken,
		AccessExpiresAt:  issued.AccessExp,
		SessionExpiresAt: issued.SessionExp,
	}
}
