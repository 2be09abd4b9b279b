// Package function holds the Function entity: one callable operation of
// an App (spec §3).
package function

import (
	"regexp"
	"time"
)

// NamePattern matches the required `<APP>__<OPERATION>` shape (spec §6).
var NamePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*__[A-Z0-9_]+$`)

// ValidName reports whether name is a legal Function name.
func ValidName(name string) bool {
	return NamePattern.MatchString(name)
}

// AppName extracts the owning App name from a Function name, the segment
// before the first "__".
func AppName(functionName string) string {
	for i := 0; i+1 < len(functionName); i++ {
		if functionName[i] == '_' && functionName[i+1] == '_' {
			return functionName[:i]
		}
	}
	return ""
}

// Protocol selects the execution engine dispatch path (spec §4.8).
type Protocol string

const (
	ProtocolREST      Protocol = "rest"
	ProtocolConnector Protocol = "connector"
)

// RESTProtocolData carries the REST executor's method/path/server_url
// template (spec §4.8).
type RESTProtocolData struct {
	Method    string `json:"method"`
	Path      string `json:"path"`
	ServerURL string `json:"server_url"`
	// ResponseJSONPath, when set, narrows a downstream JSON response to the
	// single value at this path (e.g. "data.items.0.id") instead of
	// returning the full decoded body — for a Function whose caller only
	// ever wants one field out of a larger response envelope.
	ResponseJSONPath string `json:"response_json_path,omitempty"`
}

// Visibility mirrors the App-level visibility filter applied to Functions.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// EmbeddingFields is the projection of a Function that feeds the
// embeddings adapter.
type EmbeddingFields struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Function is one callable operation belonging to an App.
type Function struct {
	Name         string
	AppName      string
	Description  string
	Tags         []string
	Visibility   Visibility
	Active       bool
	Protocol     Protocol
	RESTData     *RESTProtocolData // set iff Protocol == ProtocolREST
	ConnectorKey string            // set iff Protocol == ProtocolConnector; connector registry name (e.g. "gmail")
	Parameters   map[string]interface{}
	Response     map[string]interface{}
	Embedding    []float32
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EmbeddingFields projects the fields that feed the embeddings adapter.
func (f Function) EmbeddingFields() EmbeddingFields {
	return EmbeddingFields{
		Name:        f.Name,
		Description: f.Description,
		Tags:        append([]string(nil), f.Tags...),
	}
}

// MatchesVisibility applies the public_only/active_only filters (spec
// §4.3: "when public_only, both the Function and its owning App must be
// public"). appPublic/appActive are the owning App's own flags.
func (f Function) MatchesVisibility(publicOnly, activeOnly, appPublic, appActive bool) bool {
	if publicOnly && (f.Visibility != VisibilityPublic || !appPublic) {
		return false
	}
	if activeOnly && (!f.Active || !appActive) {
		return false
	}
	return true
}

// RESTInputBuckets are the only permitted top-level keys of a REST
// Function's parameter schema (spec §6).
var RESTInputBuckets = map[string]struct{}{
	"path":   {},
	"query":  {},
	"header": {},
	"cookie": {},
	"body":   {},
}
