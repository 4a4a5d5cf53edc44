package session

import "net/http"

// Header names understood by the build service. Both schemes have been used
// by the service over time.
const (
	HeaderAccessToken   = "Exp-Access-Token"
	HeaderSession       = "Expo-Session"
	HeaderAuthorization = "Authorization"
)

// Credentials decorates outgoing requests with authentication headers.
type Credentials interface {
	// Apply sets the credential headers on h.
	Apply(h http.Header)

	// Scheme names the strategy for logging. It never includes secrets.
	Scheme() string
}

// TokenOnly authenticates with a personal access token.
type TokenOnly struct {
	AccessToken string
}

func (c TokenOnly) Apply(h http.Header) {
	h.Set(HeaderAccessToken, c.AccessToken)
}

func (c TokenOnly) Scheme() string { return "access-token" }

// BearerPlusSession authenticates with an interactive session secret, adding
// the access token as a bearer token when one is present.
type BearerPlusSession struct {
	AccessToken   string
	SessionSecret string
}

func (c BearerPlusSession) Apply(h http.Header) {
	h.Set(HeaderSession, c.SessionSecret)
	if c.AccessToken != "" {
		h.Set(HeaderAuthorization, "Bearer "+c.AccessToken)
		h.Set(HeaderAccessToken, c.AccessToken)
	}
}

func (c BearerPlusSession) Scheme() string { return "session" }

// Anonymous sends no credentials.
type Anonymous struct{}

func (Anonymous) Apply(http.Header) {}

func (Anonymous) Scheme() string { return "anonymous" }

// CredentialsFor selects a strategy from the fields present in st.
func CredentialsFor(st *State) Credentials {
	if st == nil {
		return Anonymous{}
	}
	switch {
	case st.Auth.SessionSecret != "":
		return BearerPlusSession{AccessToken: st.AccessToken, SessionSecret: st.Auth.SessionSecret}
	case st.AccessToken != "":
		return TokenOnly{AccessToken: st.AccessToken}
	default:
		return Anonymous{}
	}
}
