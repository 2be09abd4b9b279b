package e2b

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/agentcp/internal/app/domain/credential"
	"github.com/r3e-network/agentcp/internal/app/domain/function"
)

func TestRunCodeReturnsExecutionText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/code-interpreter/execute", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		w.Write([]byte(`{"text":"hello"}`))
	}))
	defer server.Close()

	c := New(server.Client())
	c.baseURL = server.URL

	result, err := c.Execute(context.Background(), function.Function{Name: "E2B__RUN_CODE"},
		credential.Credentials{Kind: "api_key", APIKey: &credential.APIKeyCredentials{SecretKey: "test-key"}},
		map[string]interface{}{"code": "print(1)"})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "hello", result.Body.(map[string]interface{})["text"])
}

func TestRunCodeRequiresAPIKeyCredential(t *testing.T) {
	c := New(http.DefaultClient)
	_, err := c.Execute(context.Background(), function.Function{Name: "E2B__RUN_CODE"}, credential.Credentials{}, map[string]interface{}{"code": "1"})
	require.Error(t, err)
}

func TestUnknownOperationErrors(t *testing.T) {
	c := New(http.DefaultClient)
	_, err := c.Execute(context.Background(), function.Function{Name: "E2B__NOT_REAL"},
		credential.Credentials{Kind: "api_key", APIKey: &credential.APIKeyCredentials{SecretKey: "k"}}, nil)
	require.Error(t, err)
}
