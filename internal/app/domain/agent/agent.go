// Package agent holds the Agent and APIKey entities: an actor inside a
// Project and its single credential.
package agent

import (
	"strings"
	"time"
)

// Agent is an actor inside a project, scoped to an allow-list of Apps.
type Agent struct {
	ID                string
	ProjectID         string
	Name              string
	Description       string
	AllowedApps       []string
	CustomInstruction map[string]string // Function name -> instruction text
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AppAllowed reports whether appName is in the agent's allow-list.
func (a Agent) AppAllowed(appName string) bool {
	for _, name := range a.AllowedApps {
		if name == appName {
			return true
		}
	}
	return false
}

// CustomInstructionFor returns the instruction text for a Function, if any.
func (a Agent) CustomInstructionFor(functionName string) (string, bool) {
	text, ok := a.CustomInstruction[functionName]
	return text, ok
}

// RenameApp rewrites every allow-list entry and custom-instruction key
// referencing oldName to newName, used when an App is renamed (spec §3
// "Ownership & lifecycle").
func (a *Agent) RenameApp(oldName, newName string) {
	for i, name := range a.AllowedApps {
		if name == oldName {
			a.AllowedApps[i] = newName
		}
	}
	if len(a.CustomInstruction) == 0 {
		return
	}
	prefix := oldName + "__"
	rewritten := make(map[string]string, len(a.CustomInstruction))
	for key, val := range a.CustomInstruction {
		if strings.HasPrefix(key, prefix) {
			key = newName + "__" + strings.TrimPrefix(key, prefix)
		}
		rewritten[key] = val
	}
	a.CustomInstruction = rewritten
}

// RemoveApp drops name from the allow-list and any custom instructions
// scoped to it, used when an App is deleted.
func (a *Agent) RemoveApp(name string) {
	filtered := a.AllowedApps[:0]
	for _, existing := range a.AllowedApps {
		if existing != name {
			filtered = append(filtered, existing)
		}
	}
	a.AllowedApps = filtered

	prefix := name + "__"
	for key := range a.CustomInstruction {
		if strings.HasPrefix(key, prefix) {
			delete(a.CustomInstruction, key)
		}
	}
}

// KeyStatus is the lifecycle state of an API Key.
type KeyStatus string

const (
	KeyStatusActive   KeyStatus = "active"
	KeyStatusDisabled KeyStatus = "disabled"
	KeyStatusDeleted  KeyStatus = "deleted"
)

// APIKey is the credential for an Agent, stored as ciphertext (for display
// on creation) and an HMAC digest (the lookup index).
type APIKey struct {
	ID         string
	AgentID    string
	Ciphertext string
	KeyHMAC    string
	Status     KeyStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Usable reports whether the key may be used to authenticate a request.
func (k APIKey) Usable() bool {
	return k.Status == KeyStatusActive
}
