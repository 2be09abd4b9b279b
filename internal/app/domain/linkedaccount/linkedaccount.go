// Package linkedaccount holds the LinkedAccount entity: per-end-user
// credentials under an App Configuration (spec §3).
package linkedaccount

import (
	"time"

	"github.com/r3e-network/agentcp/internal/app/domain/securityscheme"
)

// LinkedAccount binds one end-user's credentials to an App under a
// Project.
type LinkedAccount struct {
	ID                   string
	ProjectID            string
	AppName              string
	LinkedAccountOwnerID string
	SecurityScheme       securityscheme.Kind
	// SecurityCredentialsRaw is the generic JSON document the credential
	// codec encrypts/decrypts designated fields of (spec §4.2). An empty
	// map means "fall back to the App's defaults" (spec §3).
	SecurityCredentialsRaw map[string]interface{}
	Enabled                bool
	LastUsedAt             *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// UsesAppDefaults reports whether the linked account has no credentials of
// its own and should fall back to the App's default credentials.
func (la LinkedAccount) UsesAppDefaults() bool {
	return len(la.SecurityCredentialsRaw) == 0
}
