// Package handshake implements the IndieAuth authorization-code login: a
// visitor claims a profile URL, is redirected to the authorization server
// that URL delegates to, and returns with a code that is exchanged
// server-to-server for the verified profile URL.
//
// An attempt moves Requested -> AuthorizationPending -> TokenExchanged ->
// Authenticated; any failure ends it. Each login attempt lives in an
// in-memory arena keyed by its nonce (the OAuth state parameter). Expired
// attempts are swept lazily whenever the arena is touched; there is no
// background goroutine.
package handshake

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gitwiki/internal/common"
	"github.com/dmitrijs2005/gitwiki/internal/logging"
)

const (
	// DefaultTTL bounds how long an attempt waits for its callback.
	DefaultTTL = 10 * time.Minute
	// DefaultMaxPending caps concurrent attempts.
	DefaultMaxPending = 1024
	// DefaultScope is requested from the authorization server.
	DefaultScope = "profile email"
	// CallbackPath is appended to the client id to form the redirect URI.
	CallbackPath = "meta/login-callback"

	nonceBytes    = 24
	verifierBytes = 48
	maxTokenBody  = 1 << 20
)

// Config configures a Handshake.
type Config struct {
	// ClientID is the externally visible URL of this wiki.
	ClientID string
	// RedirectURI defaults to ClientID + CallbackPath.
	RedirectURI string
	// TTL bounds the AuthorizationPending wait. Defaults to DefaultTTL.
	TTL time.Duration
	// MaxPending caps live attempts. Defaults to DefaultMaxPending.
	MaxPending int
	// Scope defaults to DefaultScope.
	Scope string
	// HTTPClient is used for discovery and code exchange.
	HTTPClient *http.Client
	// Now is the time source. Defaults to time.Now.
	Now func() time.Time
	Logger logging.Logger
}

// Profile is the verified result of a completed login.
type Profile struct {
	// URL is the verified, normalized profile URL.
	URL   string
	Name  string
	Email string
	Photo string
	// RedirectTo is the local path the visitor asked to return to.
	RedirectTo string
}

type attempt struct {
	claimed    string
	verifier   string
	endpoints  Endpoints
	redirectTo string
	expiresAt  time.Time
}

// Handshake runs login attempts. It is safe for concurrent use.
type Handshake struct {
	clientID    string
	redirectURI string
	ttl         time.Duration
	maxPending  int
	scope       string
	client      *http.Client
	now         func() time.Time
	logger      logging.Logger

	mu       sync.Mutex
	attempts map[string]*attempt
}

// New validates cfg and returns a Handshake.
func New(cfg Config) (*Handshake, error) {
	clientID, err := common.NormalizeProfileURL(cfg.ClientID)
	if err != nil {
		return nil, errors.New("handshake: client id: " + err.Error())
	}
	if !strings.HasSuffix(clientID, "/") {
		clientID += "/"
	}

	h := &Handshake{
		clientID:    clientID,
		redirectURI: cfg.RedirectURI,
		ttl:         cfg.TTL,
		maxPending:  cfg.MaxPending,
		scope:       cfg.Scope,
		client:      cfg.HTTPClient,
		now:         cfg.Now,
		logger:      cfg.Logger,
		attempts:    make(map[string]*attempt),
	}
	if h.redirectURI == "" {
		h.redirectURI = clientID + CallbackPath
	}
	if h.ttl <= 0 {
		h.ttl = DefaultTTL
	}
	if h.maxPending <= 0 {
		h.maxPending = DefaultMaxPending
	}
	if h.scope == "" {
		h.scope = DefaultScope
	}
	if h.client == nil {
		h.client = &http.Client{Timeout: 15 * time.Second}
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.logger == nil {
		h.logger = logging.Nop()
	}
	h.logger = h.logger.With("module", "handshake")
	return h, nil
}

// ClientID returns the normalized client identifier.
func (h *Handshake) ClientID() string { return h.clientID }

// RedirectURI returns the callback URL registered with authorization servers.
func (h *Handshake) RedirectURI() string { return h.redirectURI }

// Begin starts a login for claimedURL. It discovers the authorization
// endpoint, records a pending attempt and returns the URL to redirect the
// visitor to. redirectTo is the local path to return to after login; any
// value that is not a site-relative path is replaced by "/".
func (h *Handshake) Begin(ctx context.Context, claimedURL, redirectTo string) (string, error) {
	claimed, err := common.NormalizeProfileURL(claimedURL)
	if err != nil {
		return "", &Error{Kind: KindInvalidRequest, Err: err}
	}

	endpoints, err := Discover(ctx, h.client, claimed)
	if err != nil {
		h.logger.Warn(ctx, "endpoint discovery failed", "profile_url", claimed, "error", err)
		return "", err
	}
	if _, err := url.Parse(endpoints.Authorization); err != nil {
		return "", fail(KindDiscovery, "authorization endpoint %q: %v", endpoints.Authorization, err)
	}

	nonce, err := common.MakeRandHexString(nonceBytes)
	if err != nil {
		return "", err
	}
	verifier, err := newVerifier()
	if err != nil {
		return "", err
	}

	a := &attempt{
		claimed:    claimed,
		verifier:   verifier,
		endpoints:  endpoints,
		redirectTo: safeRedirect(redirectTo),
		expiresAt:  h.now().Add(h.ttl),
	}

	h.mu.Lock()
	h.sweepLocked()
	if len(h.attempts) >= h.maxPending {
		h.mu.Unlock()
		return "", fail(KindInvalidRequest, "too many pending logins")
	}
	h.attempts[nonce] = a
	h.mu.Unlock()

	authURL, _ := url.Parse(endpoints.Authorization)
	q := authURL.Query()
	q.Set("response_type", "code")
	q.Set("client_id", h.clientID)
	q.Set("redirect_uri", h.redirectURI)
	q.Set("state", nonce)
	q.Set("code_challenge", challenge(verifier))
	q.Set("code_challenge_method", "S256")
	q.Set("scope", h.scope)
	q.Set("me", claimed)
	authURL.RawQuery = q.Encode()

	h.logger.Debug(ctx, "login requested", "profile_url", claimed, "authorization_endpoint", endpoints.Authorization)
	return authURL.String(), nil
}

// Complete finishes the attempt identified by nonce using the authorization
// code from the callback. The attempt is released whatever the outcome.
//
// Errors: ErrInvalidState for an unknown, consumed or expired nonce;
// ErrIdentityMismatch when the server vouches for a different profile URL;
// ErrTimeout when the exchange times out; ErrExchange otherwise.
func (h *Handshake) Complete(ctx context.Context, nonce, code string) (*Profile, error) {
	h.mu.Lock()
	h.sweepLocked()
	a, ok := h.attempts[nonce]
	delete(h.attempts, nonce)
	h.mu.Unlock()

	if !ok || nonce == "" {
		return nil, fail(KindInvalidState, "unknown or expired login attempt")
	}
	if code == "" {
		return nil, fail(KindExchange, "callback carried no authorization code")
	}

	resp, err := h.exchange(ctx, a, code)
	if err != nil {
		h.logger.Warn(ctx, "code exchange failed", "profile_url", a.claimed, "error", err)
		return nil, err
	}

	verified, err := common.NormalizeProfileURL(resp.Me)
	if err != nil {
		return nil, fail(KindExchange, "server returned invalid me %q", resp.Me)
	}
	if verified != a.claimed {
		h.logger.Warn(ctx, "identity mismatch", "claimed", a.claimed, "verified", verified)
		return nil, fail(KindIdentityMismatch, "claimed %s, verified %s", a.claimed, verified)
	}

	h.logger.Info(ctx, "login verified", "profile_url", verified)

	p := &Profile{URL: verified, RedirectTo: a.redirectTo}
	if resp.Profile != nil {
		p.Name = resp.Profile.Name
		p.Email = resp.Profile.Email
		p.Photo = resp.Profile.Photo
	}
	return p, nil
}

// Cancel drops a pending attempt. Unknown nonces are ignored.
func (h *Handshake) Cancel(nonce string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.attempts, nonce)
}

// Pending returns the number of live attempts after sweeping expired ones.
func (h *Handshake) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sweepLocked()
	return len(h.attempts)
}

func (h *Handshake) sweepLocked() {
	now := h.now()
	for nonce, a := range h.attempts {
		if !a.expiresAt.After(now) {
			delete(h.attempts, nonce)
		}
	}
}

type tokenResponse struct {
	Me      string `json:"me"`
	Profile *struct {
		Name  string `json:"name"`
		URL   string `json:"url"`
		Photo string `json:"photo"`
		Email string `json:"email"`
	} `json:"profile,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func (h *Handshake) exchange(ctx context.Context, a *attempt, code string) (*tokenResponse, error) {
	endpoint := a.endpoints.Token
	if endpoint == "" {
		endpoint = a.endpoints.Authorization
	}

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {h.clientID},
		"redirect_uri":  {h.redirectURI},
		"code_verifier": {a.verifier},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fail(KindExchange, "%v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	res, err := h.client.Do(req)
	if err != nil {
		return nil, transportError(KindExchange, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxTokenBody))
	if err != nil {
		return nil, transportError(KindExchange, err)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		if res.StatusCode != http.StatusOK {
			return nil, fail(KindExchange, "POST %s: %s", endpoint, res.Status)
		}
		return nil, fail(KindExchange, "POST %s: undecodable response: %v", endpoint, err)
	}
	if res.StatusCode != http.StatusOK || tr.Error != "" {
		return nil, fail(KindExchange, "POST %s: %s %s %s", endpoint, res.Status, tr.Error, tr.ErrorDescription)
	}
	if tr.Me == "" {
		return nil, fail(KindExchange, "POST %s: response has no me", endpoint)
	}
	return &tr, nil
}

// newVerifier returns a PKCE code verifier: 43+ characters from the
// unreserved set.
func newVerifier() (string, error) {
	return base64.RawURLEncoding.EncodeToString(common.GenerateRandByteArray(verifierBytes)), nil
}

func challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func safeRedirect(p string) string {
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return "/"
	}
	return p
}
