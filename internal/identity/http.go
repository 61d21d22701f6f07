package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/roach88/tandem/internal/clock"
	"github.com/roach88/tandem/internal/model"
)

// DefaultTimeout bounds one authentication request.
const DefaultTimeout = 10 * time.Second

// Claims is the token payload issued by the identity service. The subject
// is the account id.
type Claims struct {
	Name             string `json:"name,omitempty"`
	Email            string `json:"email,omitempty"`
	Avatar           string `json:"avatar,omitempty"`
	OrganizationID   string `json:"org_id,omitempty"`
	OrganizationName string `json:"org_name,omitempty"`
	AccountGroupID   string `json:"group,omitempty"`
	jwt.RegisteredClaims
}

// Account maps the claims onto an account.
func (c *Claims) Account() model.Account {
	return model.Account{
		ID:               c.Subject,
		DisplayName:      c.Name,
		Email:            c.Email,
		Avatar:           c.Avatar,
		OrganizationID:   c.OrganizationID,
		OrganizationName: c.OrganizationName,
		AccountGroupID:   c.AccountGroupID,
	}
}

// HTTP authenticates by posting credentials to an identity service and
// verifying the HS256 token it returns.
//
// Request:  POST {url} {"identifier": "...", "secret": "..."}
// Response: 200 {"token": "<jwt>"}, 401 on bad credentials.
type HTTP struct {
	url    string
	key    []byte
	issuer string
	client *http.Client
	clock  clock.Clock
}

var _ Provider = (*HTTP)(nil)

// HTTPOption configures an HTTP provider.
type HTTPOption func(*HTTP)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) {
		h.client = c
	}
}

// WithIssuer requires tokens to carry this issuer.
func WithIssuer(iss string) HTTPOption {
	return func(h *HTTP) {
		h.issuer = iss
	}
}

// WithClock sets the clock tokens are validated against.
func WithClock(c clock.Clock) HTTPOption {
	return func(h *HTTP) {
		h.clock = c
	}
}

// NewHTTP creates a provider for the service at url. signingKey verifies
// the returned tokens.
func NewHTTP(url string, signingKey []byte, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		url:    url,
		key:    signingKey,
		client: &http.Client{Timeout: DefaultTimeout},
		clock:  clock.Real{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type authRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

type authResponse struct {
	Token string `json:"token"`
}

// Authenticate implements Provider.
func (h *HTTP) Authenticate(ctx context.Context, identifier, secret string) (model.Account, error) {
	body, err := json.Marshal(authRequest{Identifier: identifier, Secret: secret})
	if err != nil {
		return model.Account{}, fmt.Errorf("encode credentials: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return model.Account{}, fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return model.Account{}, fmt.Errorf("auth request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return model.Account{}, ErrInvalidCredentials
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.Account{}, fmt.Errorf("auth request: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out authResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return model.Account{}, fmt.Errorf("decode auth response: %w", err)
	}

	claims, err := h.Verify(out.Token)
	if err != nil {
		return model.Account{}, err
	}
	return claims.Account(), nil
}

// Verify parses and validates a token.
func (h *HTTP) Verify(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(h.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if h.issuer != "" {
		opts = append(opts, jwt.WithIssuer(h.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return h.key, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("verify token: %w", jwt.ErrTokenSignatureInvalid)
	}
	if err := ValidateAccountID(claims.Subject); err != nil {
		return nil, fmt.Errorf("verify token: subject: %w", err)
	}
	return claims, nil
}

// SignToken issues an HS256 token for a the way the identity service
// does.
func SignToken(key []byte, issuer string, a model.Account, now time.Time, ttl time.Duration) (string, error) {
	if len(key) == 0 {
		return "", fmt.Errorf("sign token: missing key")
	}
	if a.ID == "" {
		return "", fmt.Errorf("sign token: missing account id")
	}
	claims := Claims{
		Name:             a.DisplayName,
		Email:            a.Email,
		Avatar:           a.Avatar,
		OrganizationID:   a.OrganizationID,
		OrganizationName: a.OrganizationName,
		AccountGroupID:   a.AccountGroupID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   a.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}
