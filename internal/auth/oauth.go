package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Identity is the verified profile the OAuth provider vouches for. The
// rest of the system consumes Subject as an opaque string — it never
// parses or interprets it.
type Identity struct {
	Subject string `json:"sub"`     // stable, unique, opaque per-account identifier
	Email   string `json:"email"`   // may be empty if the user hides it
	Name    string `json:"name"`    // display name
	Picture string `json:"picture"` // avatar URL, may be empty
}

// Provider wraps golang.org/x/oauth2 for the Authorization Code flow
// against Google's OIDC endpoints.
//
// OAUTH 2.0 AUTHORIZATION CODE FLOW:
//  1. We redirect the user to the provider's authorization endpoint.
//  2. The user approves; the provider redirects back with a short-lived code.
//  3. We exchange the code for an access token, server-to-server, using
//     the client secret — the token never touches the browser.
//  4. We call the userinfo endpoint with the token to get the profile.
type Provider struct {
	config      *oauth2.Config
	userInfoURL string
}

// NewProvider creates a Provider with the given credentials.
//
// callbackURL must exactly match the redirect URI registered with the
// provider, e.g. "http://localhost:8080/auth/callback".
//
// Scopes: "openid email profile" — the minimum that yields a stable
// subject plus the email/name/picture the identity bridge wants.
func NewProvider(clientID, clientSecret, callbackURL string) *Provider {
	return &Provider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
	}
}

// AuthURL returns the URL to redirect the user to for authorization.
//
// The state parameter is a random string stored in a cookie before the
// redirect; the callback handler checks the provider echoed it back,
// which blocks CSRF-style forced logins.
func (p *Provider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange completes the OAuth flow: trades the authorization code for a
// verified Identity.
func (p *Provider) Exchange(ctx context.Context, code string) (*Identity, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// config.Client returns an *http.Client that adds the Bearer header
	// to every request.
	client := p.config.Client(ctx, oauthToken)

	resp, err := client.Get(p.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("auth: calling userinfo endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: userinfo endpoint returned status %d", resp.StatusCode)
	}

	var id Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return nil, fmt.Errorf("auth: decoding userinfo response: %w", err)
	}

	if id.Subject == "" {
		return nil, fmt.Errorf("auth: provider returned an identity with no subject")
	}

	return &id, nil
}
