package models

// Session is an opaque credential. The core forwards it unchanged to every outbound call.
type Session struct {
	token string
}

// NewSession wraps an authentication token.
func NewSession(token string) Session {
	return Session{token: token}
}

// Token returns the wrapped token. Only the transport layer should call it.
func (s Session) Token() string {
	return s.token
}

// Valid reports whether the session carries a token.
func (s Session) Valid() bool {
	return s.token != ""
}

// String hides the token from logs.
func (s Session) String() string {
	if s.token == "" {
		return "Session(none)"
	}
	return "Session(***)"
}

// League is a league the logged in account belongs to.
type League struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// User is a league participant.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Points int64  `json:"points"`
}
