package password

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Policy and hash-format failures. The policy messages reach users through
// identity's invalid-input errors.
var (
	ErrPasswordTooShort = errors.New("password below minimum length")
	ErrPasswordTooLong  = errors.New("password above maximum length")
	ErrWeakPassword     = errors.New("password is too easy to guess")
	ErrInvalidHash      = errors.New("stored password hash is not a valid argon2id PHC string")
)

var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "password123": {}, "passw0rd": {},
	"123456": {}, "12345678": {}, "123456789": {}, "1234567890": {},
	"qwerty": {}, "qwerty123": {}, "qwertyuiop": {}, "letmein": {},
	"iloveyou": {}, "admin123": {}, "welcome1": {}, "11111111": {},
}

// Validate checks the length policy (in runes) and, when enabled, rejects
// trivially guessable passwords.
func (c Config) Validate(password string) error {
	n := utf8.RuneCountInString(password)
	switch {
	case n < c.Policy.MinLength:
		return ErrPasswordTooShort
	case n > c.Policy.MaxLength:
		return ErrPasswordTooLong
	case c.Policy.RejectVeryWeak && veryWeak(password):
		return ErrWeakPassword
	}
	return nil
}

func veryWeak(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}
	if _, ok := commonPasswords[strings.ToLower(s)]; ok {
		return true
	}

	first, _ := utf8.DecodeRuneInString(s)
	repeated := strings.TrimLeftFunc(s, func(r rune) bool { return r == first }) == ""
	if repeated {
		return true
	}

	digits := strings.TrimLeftFunc(s, unicode.IsDigit) == ""
	return digits && utf8.RuneCountInString(s) < 12
}
