// Package identity authenticates accounts against an external identity
// service. Credential issuance and storage live outside tandem; a Provider
// only turns credentials into a verified Account.
package identity

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/tandem/internal/model"
)

// ErrInvalidCredentials is returned when the identifier or secret is
// wrong. Providers never say which.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInvalidAccountID is returned for an account id that is empty or
// contains '.' or '/'. Ids become document path segments and keys of
// per-participant maps.
var ErrInvalidAccountID = errors.New("invalid account id")

// ValidateAccountID checks that id can name an account.
func ValidateAccountID(id string) error {
	if id == "" || strings.ContainsAny(id, "./") {
		return fmt.Errorf("%w: %q", ErrInvalidAccountID, id)
	}
	return nil
}

// Provider authenticates an account.
type Provider interface {
	Authenticate(ctx context.Context, identifier, secret string) (model.Account, error)
}

// StaticAccount is an account with its secret.
type StaticAccount struct {
	Account model.Account
	Secret  string
}

// Static authenticates against a fixed list of accounts, matched by id or
// email (case-insensitive).
type Static struct {
	accounts []StaticAccount
}

var _ Provider = (*Static)(nil)

// NewStatic creates a Static provider.
func NewStatic(accounts []StaticAccount) *Static {
	return &Static{accounts: append([]StaticAccount(nil), accounts...)}
}

// Authenticate implements Provider.
func (s *Static) Authenticate(ctx context.Context, identifier, secret string) (model.Account, error) {
	if err := ctx.Err(); err != nil {
		return model.Account{}, err
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return model.Account{}, ErrInvalidCredentials
	}
	for _, a := range s.accounts {
		if a.Account.ID != identifier && !strings.EqualFold(a.Account.Email, identifier) {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(a.Secret), []byte(secret)) != 1 {
			return model.Account{}, ErrInvalidCredentials
		}
		return a.Account, nil
	}
	return model.Account{}, ErrInvalidCredentials
}

// Accounts returns the configured accounts without their secrets.
func (s *Static) Accounts() []model.Account {
	out := make([]model.Account, len(s.accounts))
	for i, a := range s.accounts {
		out[i] = a.Account
	}
	return out
}
