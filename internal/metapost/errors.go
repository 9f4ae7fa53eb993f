package metapost

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSdkLoadFailure is returned when the identity provider could not be loaded or initialized.
	ErrSdkLoadFailure = errors.New("identity provider failed to load")
	// ErrSdkNotLoaded is returned when an operation needs a ready provider and none is loaded.
	ErrSdkNotLoaded = errors.New("identity provider is not loaded")
	// ErrLoginTimedOut is returned when the login call did not answer in time.
	ErrLoginTimedOut = errors.New("login timed out")
	// ErrLoginCancelled is returned when the user cancelled login or granted no permissions.
	ErrLoginCancelled = errors.New("login cancelled or permissions not granted")
	// ErrNotAuthorized is returned when the provider reports the app as not authorized.
	ErrNotAuthorized = errors.New("login was not authorized")
	// ErrTooManyAttempts is returned once the login attempt cap is exhausted.
	ErrTooManyAttempts = errors.New("too many failed login attempts")
	// ErrNetwork marks transport failures; only login retries on it.
	ErrNetwork = errors.New("network error")
	// ErrNoPrimaryResource is returned when the user manages no pages.
	ErrNoPrimaryResource = errors.New("no facebook pages found")
	// ErrNoLinkedAccount is returned when the page has no instagram business account.
	ErrNoLinkedAccount = errors.New("no instagram business account connected to this facebook page")
	// ErrValidation marks drafts rejected before any network call.
	ErrValidation = errors.New("validation failed")
	// ErrRemoteAPI marks error payloads returned by the Graph API.
	ErrRemoteAPI = errors.New("remote api error")
	// ErrPublishInProgress is returned when a draft is already being published.
	ErrPublishInProgress = errors.New("publish already in progress")
)

// MissingEnvError is returned when required configuration is missing.
type MissingEnvError struct {
	Provider  string
	Variables []string
}

func (e MissingEnvError) Error() string {
	if len(e.Variables) == 0 {
		return fmt.Sprintf("%s credentials not configured", e.Provider)
	}
	return fmt.Sprintf("%s credentials not configured (missing %s)", e.Provider, strings.Join(e.Variables, ", "))
}

// ValidationError captures provider-specific validation issues.
type ValidationError struct {
	Provider string
	Reason   string
}

func (e ValidationError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("%s validation failed: %s", e.Provider, e.Reason)
}

// Is matches ErrValidation.
func (e ValidationError) Is(target error) bool { return target == ErrValidation }

// RemoteAPIError is an error payload returned by the Graph API.
type RemoteAPIError struct {
	Message    string
	Type       string
	Code       int
	Subcode    int
	TraceID    string
	HTTPStatus int
}

func (e *RemoteAPIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	if e.Code != 0 {
		return fmt.Sprintf("graph api error %d: %s", e.Code, msg)
	}
	return fmt.Sprintf("graph api error: %s", msg)
}

// Is matches ErrRemoteAPI.
func (e *RemoteAPIError) Is(target error) bool { return target == ErrRemoteAPI }

// OAuthException reports whether the error is an invalid or expired token.
func (e *RemoteAPIError) OAuthException() bool {
	return e.Type == "OAuthException" || e.Code == 190
}

// NetworkError wraps a transport failure.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("network error: %v", e.Err)
	}
	return fmt.Sprintf("network error: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Is matches ErrNetwork.
func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// StepError records which step of a target's publish sequence failed.
type StepError struct {
	Target Target
	Step   string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Target, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
