// Package app holds the App entity: a declarative description of a
// third-party integration (spec §3).
package app

import (
	"regexp"
	"time"

	"github.com/r3e-network/agentcp/internal/app/domain/securityscheme"
)

// NamePattern matches a valid App name: uppercase letters/digits/underscore,
// no consecutive underscores (spec §6).
var NamePattern = regexp.MustCompile(`^[A-Z0-9]+(_[A-Z0-9]+)*$`)

// ValidName reports whether name is a legal App name.
func ValidName(name string) bool {
	return NamePattern.MatchString(name)
}

// EmbeddingFields is the projection of an App that feeds the embeddings
// adapter (spec §4.2): name, display name, provider, description,
// categories. Kept separate from App so the embedding text is stable even
// as other App fields (security schemes, active/visibility flags) change.
type EmbeddingFields struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Provider    string   `json:"provider"`
	Description string   `json:"description"`
	Categories  []string `json:"categories"`
}

// App is a declarative description of a third-party integration.
type App struct {
	Name                          string
	DisplayName                   string
	Provider                      string
	Version                       string
	Description                   string
	Logo                          string
	Categories                    []string
	Visibility                    Visibility
	Active                        bool
	SecuritySchemes               map[securityscheme.Kind]securityscheme.Scheme
	DefaultSecurityCredentialsRaw map[securityscheme.Kind]map[string]interface{}
	Embedding                     []float32
	CreatedAt                     time.Time
	UpdatedAt                     time.Time
}

// Visibility controls catalogue inclusion under public_only filters.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// OffersScheme reports whether the App offers the given security scheme
// kind (spec §3 invariants 2 & 3).
func (a App) OffersScheme(kind securityscheme.Kind) bool {
	_, ok := a.SecuritySchemes[kind]
	return ok
}

// EmbeddingFields projects the fields that feed the embeddings adapter.
func (a App) EmbeddingFields() EmbeddingFields {
	return EmbeddingFields{
		Name:        a.Name,
		DisplayName: a.DisplayName,
		Provider:    a.Provider,
		Description: a.Description,
		Categories:  append([]string(nil), a.Categories...),
	}
}

// MatchesVisibility applies the public_only/active_only filters shared by
// get_app/search_apps (spec §4.3).
func (a App) MatchesVisibility(publicOnly, activeOnly bool) bool {
	if publicOnly && a.Visibility != VisibilityPublic {
		return false
	}
	if activeOnly && !a.Active {
		return false
	}
	return true
}
