package agentsecrets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/agentcp/internal/app/domain/credential"
	"github.com/r3e-network/agentcp/internal/app/domain/function"
	"github.com/r3e-network/agentcp/internal/app/storage/memory"
)

func call(t *testing.T, c *Connector, opName string, input map[string]interface{}) (interface{}, error) {
	t.Helper()
	result, err := c.Execute(context.Background(), function.Function{Name: "AGENT_SECRETS_MANAGER__" + opName}, credential.Credentials{}, input)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, assertionError(result.Error)
	}
	return result.Body, nil
}

type assertionError string

func (e assertionError) Error() string { return string(e) }

func TestCreateThenGetCredentialForDomain(t *testing.T) {
	c := New(memory.New())
	input := map[string]interface{}{"linked_account_id": "la-1", "domain": "example.com", "username": "alice", "password": "s3cret"}

	_, err := call(t, c, "CREATE_CREDENTIAL_FOR_DOMAIN", input)
	require.NoError(t, err)

	body, err := call(t, c, "GET_CREDENTIAL_FOR_DOMAIN", map[string]interface{}{"linked_account_id": "la-1", "domain": "example.com"})
	require.NoError(t, err)
	got := body.(map[string]interface{})
	assert.Equal(t, "alice", got["username"])
	assert.Equal(t, "s3cret", got["password"])
}

func TestCreateCredentialForDomainRejectsDuplicate(t *testing.T) {
	c := New(memory.New())
	input := map[string]interface{}{"linked_account_id": "la-1", "domain": "example.com", "username": "alice", "password": "s3cret"}

	_, err := call(t, c, "CREATE_CREDENTIAL_FOR_DOMAIN", input)
	require.NoError(t, err)

	_, err = c.Execute(context.Background(), function.Function{Name: "AGENT_SECRETS_MANAGER__CREATE_CREDENTIAL_FOR_DOMAIN"}, credential.Credentials{}, input)
	require.Error(t, err)
}

func TestUpdateCredentialForDomainChangesPassword(t *testing.T) {
	c := New(memory.New())
	input := map[string]interface{}{"linked_account_id": "la-1", "domain": "example.com", "username": "alice", "password": "s3cret"}
	_, err := call(t, c, "CREATE_CREDENTIAL_FOR_DOMAIN", input)
	require.NoError(t, err)

	_, err = call(t, c, "UPDATE_CREDENTIAL_FOR_DOMAIN", map[string]interface{}{
		"linked_account_id": "la-1", "domain": "example.com", "username": "alice", "password": "new-password",
	})
	require.NoError(t, err)

	body, err := call(t, c, "GET_CREDENTIAL_FOR_DOMAIN", map[string]interface{}{"linked_account_id": "la-1", "domain": "example.com"})
	require.NoError(t, err)
	assert.Equal(t, "new-password", body.(map[string]interface{})["password"])
}

func TestUpdateCredentialForDomainRequiresExisting(t *testing.T) {
	c := New(memory.New())
	_, err := c.Execute(context.Background(), function.Function{Name: "AGENT_SECRETS_MANAGER__UPDATE_CREDENTIAL_FOR_DOMAIN"}, credential.Credentials{},
		map[string]interface{}{"linked_account_id": "la-1", "domain": "never-created.com", "username": "x", "password": "y"})
	require.Error(t, err)
}

func TestDeleteThenListCredentials(t *testing.T) {
	c := New(memory.New())
	input := map[string]interface{}{"linked_account_id": "la-1", "domain": "example.com", "username": "alice", "password": "s3cret"}
	_, err := call(t, c, "CREATE_CREDENTIAL_FOR_DOMAIN", input)
	require.NoError(t, err)

	_, err = call(t, c, "DELETE_CREDENTIAL_FOR_DOMAIN", map[string]interface{}{"linked_account_id": "la-1", "domain": "example.com"})
	require.NoError(t, err)

	body, err := call(t, c, "LIST_CREDENTIALS", map[string]interface{}{"linked_account_id": "la-1"})
	require.NoError(t, err)
	assert.Empty(t, body)
}
