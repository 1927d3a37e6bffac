package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// MinPasswordLen is the shortest password ever accepted
const MinPasswordLen = 6

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidCode        = errors.New("invalid one-time code")
	ErrDisabled           = errors.New("login method not configured")
)

// Error is a login the identity check rejected. The view sends the user
// back to the login page with Err as the message.
type Error struct {
	Method string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s login: %v", e.Method, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Credentials is the single configured username/password pair
type Credentials struct {
	Username string
	Password string
	UserID   string
}

func (c Credentials) Enabled() bool {
	return c.Username != "" && c.UserID != ""
}

// Check returns the user id for a matching username and password
func (c Credentials) Check(username, password string) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}
	if len(password) < MinPasswordLen {
		return "", ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(username)), []byte(c.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(c.Password)) == 1
	if !userOK || !passOK {
		return "", ErrInvalidCredentials
	}
	return c.UserID, nil
}

// OTPVerifier exchanges a code from the chat bot for a user id
type OTPVerifier interface {
	VerifyOTP(ctx context.Context, userName, otp string) (string, error)
}

// Authenticator resolves an identity from either login form
type Authenticator struct {
	Creds  Credentials
	OTP    OTPVerifier
	Logger zerolog.Logger
}

// Login checks the credentials form
func (a Authenticator) Login(username, password string) (string, error) {
	id, err := a.Creds.Check(username, password)
	if err != nil {
		a.Logger.Info().Str("method", "credentials").Err(err).Msg("login rejected")
		return "", &Error{Method: "credentials", Err: err}
	}
	a.Logger.Info().Str("method", "credentials").Str("user_id", id).Msg("login")
	return id, nil
}

// LoginOTP verifies a one-time code with the backend. Any failure, network
// errors included, is an *Error.
func (a Authenticator) LoginOTP(ctx context.Context, userName, code string) (string, error) {
	if a.OTP == nil {
		return "", &Error{Method: "otp", Err: ErrDisabled}
	}
	code = strings.TrimSpace(code)
	if code == "" || strings.TrimFunc(code, isDigit) != "" {
		return "", &Error{Method: "otp", Err: ErrInvalidCode}
	}

	id, err := a.OTP.VerifyOTP(ctx, strings.TrimSpace(userName), code)
	if err != nil {
		a.Logger.Info().Str("method", "otp").Err(err).Msg("login rejected")
		return "", &Error{Method: "otp", Err: fmt.Errorf("%w: %v", ErrInvalidCode, err)}
	}
	if id == "" {
		return "", &Error{Method: "otp", Err: ErrInvalidCode}
	}
	a.Logger.Info().Str("method", "otp").Str("user_id", id).Msg("login")
	return id, nil
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
