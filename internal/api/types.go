package api

// Wire-level strategy names used by the auth service's configuration
// endpoint. They are mapped to the client-side Strategy enum in the
// session package.
const (
	WireStrategyEmail = "email"
	WireStrategyOAuth = "pythagora_oauth"
)

// AuthConfig is the auth service's advertised authentication configuration.
// It is fetched once per run from GET /api/auth/config and treated as
// immutable afterwards.
type AuthConfig struct {
	Strategy string       `json:"strategy"`
	OAuth    *OAuthParams `json:"oauth,omitempty"`
}

// OAuthParams carries the parameters needed to construct the authorization
// redirect for the delegated OAuth flow.
type OAuthParams struct {
	AuthorizeURL string `json:"authorizeUrl"`
	ClientID     string `json:"clientId"`
	Scope        string `json:"scope"`

	// Issuer is optional. When set, the authorize endpoint can be
	// discovered via OIDC and ID tokens in the exchange response are
	// verified against it.
	Issuer string `json:"issuer,omitempty"`
}

// User is the profile snapshot returned by the auth service at login,
// registration or code-exchange time. It is stale until the next login;
// there is no background refresh.
type User struct {
	ID    string `json:"_id"`
	Email string `json:"email"`
	Role  string `json:"role"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// AuthResponse is the common response shape of the login, register and
// oauth/exchange endpoints: a token pair with the user's profile fields
// flattened alongside.
type AuthResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`

	// IDToken is present only when the backing identity provider issues
	// one; verified by the session manager when an issuer is configured.
	IDToken string `json:"idToken,omitempty"`

	User
}

// credentialRequest is the body of the login and register endpoints.
type credentialRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// exchangeRequest is the body of the oauth/exchange endpoint.
type exchangeRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirectUri"`
}

// errorBody is the shape of non-2xx responses from the auth service.
type errorBody struct {
	Message string `json:"message"`
}
