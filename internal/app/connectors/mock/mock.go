// Package mock implements a test/demo connector (SPEC_FULL §12's example
// connector catalogue), echoing its input back as the result so
// integration tests can exercise the full authorization -> execution
// pipeline without a real third-party dependency.
package mock

import (
	"context"

	"github.com/r3e-network/agentcp/internal/app/domain/credential"
	"github.com/r3e-network/agentcp/internal/app/domain/function"
	"github.com/r3e-network/agentcp/internal/app/execution"
)

// Connector echoes its input and the credential kind it was resolved
// with, as Body.
type Connector struct{}

// New constructs a Connector.
func New() *Connector { return &Connector{} }

var _ execution.Connector = (*Connector)(nil)

// Execute implements execution.Connector.
func (c *Connector) Execute(_ context.Context, fn function.Function, creds credential.Credentials, input map[string]interface{}) (execution.Result, error) {
	return execution.Result{
		Success: true,
		Body: map[string]interface{}{
			"function":        fn.Name,
			"credential_kind": string(creds.Kind),
			"echo":            input,
		},
	}, nil
}
