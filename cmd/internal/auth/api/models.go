package authapi

import "time"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResponse struct {
	SessionID        string    `json:"session_id"`
	Platform         string    `json:"platform"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	SessionExpiresAt time.Time `json:"session_expires_at"`
}

type loginResponse struct {
	User    userResponse    `json:"user"`
	Session sessionResponse `json:"session"`
}

type meResponse struct {
	User      userResponse `json:"user"`
	SessionID string       `json:"session_id"`
	Via       string       `json:"via"`
}

type publicResponse struct {
	OK            bool   `json:"ok"`
	Authenticated bool   `json:"authenticated"`
	Via           string `json:"via,omitempty"`
}
