package vault

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gitwiki/internal/common"
)

// Role is the permission level attached to an identity at creation.
type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleStandard      Role = "standard"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdministrator || r == RoleStandard
}

// ParseRole converts a role name to a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Identity is a person known to the wiki. ProfileURL is the stable external
// identifier shared with the login handshake.
type Identity struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	ProfileURL string `json:"profile_url"`
}

// Record is one vault entry.
type Record struct {
	Identity
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// IsAdministrator reports whether the record carries the administrator role.
func (r Record) IsAdministrator() bool {
	return r.Role == RoleAdministrator
}

// Validate checks the identity fields and normalizes the profile URL in place.
func (i *Identity) Validate() error {
	i.Name = strings.TrimSpace(i.Name)
	i.Email = strings.TrimSpace(i.Email)
	if i.Name == "" {
		return errors.New("identity name is empty")
	}
	if i.Email != "" && !strings.Contains(i.Email, "@") {
		return fmt.Errorf("identity email %q is invalid", i.Email)
	}
	normalized, err := common.NormalizeProfileURL(i.ProfileURL)
	if err != nil {
		return err
	}
	i.ProfileURL = normalized
	return nil
}
