// Package session implements QuoteBid's server-side sessions.
//
// A login creates one user_sessions row and hands the client two
// credentials: an opaque session token (sent back as a cookie, stored only
// as a hash) and a short-lived PASETO v4.public access token (sent as a
// bearer header or as the websocket ?token= parameter).
//
// Access tokens are stateless. Deleting session rows does not invalidate
// them; only their expiry or an entry in the Denylist does.
package session
