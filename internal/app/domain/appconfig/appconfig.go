// Package appconfig holds the AppConfiguration entity: a Project's decision
// to integrate an App (spec §3).
package appconfig

import (
	"time"

	"github.com/r3e-network/agentcp/internal/app/domain/securityscheme"
)

// AppConfiguration is a Project's choice to integrate an App with a
// specific scheme and optional overrides.
type AppConfiguration struct {
	ID                     string
	ProjectID              string
	AppName                string
	SecurityScheme         securityscheme.Kind
	OAuth2Override         *securityscheme.OAuth2Scheme
	Enabled                bool
	AllFunctionsEnabled    bool
	EnabledFunctions       []string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Validate checks the invariant `all_functions_enabled ⇒ enabled_functions
// == []` (spec §3).
func (c AppConfiguration) Validate() error {
	if c.AllFunctionsEnabled && len(c.EnabledFunctions) != 0 {
		return errInvariant
	}
	return nil
}

var errInvariant = invariantError("all_functions_enabled=true requires enabled_functions to be empty")

type invariantError string

func (e invariantError) Error() string { return string(e) }

// FunctionEnabled reports whether a Function is reachable under this
// configuration.
func (c AppConfiguration) FunctionEnabled(functionName string) bool {
	if c.AllFunctionsEnabled {
		return true
	}
	for _, name := range c.EnabledFunctions {
		if name == functionName {
			return true
		}
	}
	return false
}

// RenameApp rewrites enabled_functions entries from the old `<APP>__`
// prefix to the new one, used when an App is renamed.
func (c *AppConfiguration) RenameApp(oldName, newName string) {
	if c.AppName == oldName {
		c.AppName = newName
	}
	oldPrefix := oldName + "__"
	for i, name := range c.EnabledFunctions {
		if len(name) > len(oldPrefix) && name[:len(oldPrefix)] == oldPrefix {
			c.EnabledFunctions[i] = newName + "__" + name[len(oldPrefix):]
		}
	}
}
