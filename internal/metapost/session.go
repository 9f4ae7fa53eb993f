package metapost

// SessionStatus is the state of the primary platform login.
type SessionStatus string

const (
	SessionIdle           SessionStatus = "idle"
	SessionAuthenticating SessionStatus = "attempting_login"
	SessionConnected      SessionStatus = "connected"
	SessionError          SessionStatus = "error"
)

// Session is the in-memory login state. Only the auth machine mutates it.
type Session struct {
	Status     SessionStatus
	Token      string
	LastError  error
	RetryCount int
}

// Connected reports whether the session carries a usable token.
func (s Session) Connected() bool {
	return s.Status == SessionConnected && s.Token != ""
}

// LinkStatus is the state of linked account resolution.
type LinkStatus string

const (
	LinkIdle      LinkStatus = "idle"
	LinkResolving LinkStatus = "resolving"
	LinkConnected LinkStatus = "connected"
	LinkError     LinkStatus = "error"
)

// LinkedAccount is the instagram business account attached to the first managed page.
// Page.AccessToken is the page-scoped credential used for every publish call.
type LinkedAccount struct {
	Status    LinkStatus
	AccountID string
	Page      Resource
	LastError error
}

// Connected reports whether the account was resolved. It is safe on a nil receiver.
func (l *LinkedAccount) Connected() bool {
	return l != nil && l.Status == LinkConnected && l.AccountID != "" && l.Page.AccessToken != ""
}
