package v1

type ReadyPayload struct {
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Anonymous bool   `json:"anonymous"`
	Mobile    bool   `json:"mobile"`
}

type NoticePayload struct {
	Text string `json:"text"`
}

type RevokedPayload struct {
	Reason string `json:"reason"`
}

// PingPayload is echoed back unchanged in the pong.
type PingPayload struct {
	Nonce string `json:"nonce,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
