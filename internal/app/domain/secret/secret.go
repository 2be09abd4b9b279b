// Package secret holds the Secret entity: a username/password pair keyed
// by (linked account, domain), used by the Agent Secrets Manager
// connector (spec §3, §4.8). Neither field is encrypted by this package,
// by the connector, or by the stores.
package secret

import "time"

// Secret is a credential value scoped to a LinkedAccount.
type Secret struct {
	ID              string
	LinkedAccountID string
	Domain          string // the Agent Secrets Manager's credential-domain key
	Username        string
	// Password is persisted and returned exactly as the connector
	// received it; no codec encrypts or decrypts it.
	Password  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Metadata is the non-sensitive projection returned by list operations.
type Metadata struct {
	ID        string
	Domain    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ToMetadata strips the credential payload.
func (s Secret) ToMetadata() Metadata {
	return Metadata{ID: s.ID, Domain: s.Domain, CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt}
}
