package gmail

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/agentcp/internal/app/domain/credential"
	"github.com/r3e-network/agentcp/internal/app/domain/function"
)

func newTestConnector(t *testing.T, handler http.HandlerFunc) (*Connector, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	c := New(server.Client())
	// call() builds its own absolute URL from the package-level baseURL
	// constant, so route every Gmail API host through the test server by
	// overriding the transport instead.
	c.httpClient.Transport = rewriteHostTransport{target: server.URL, base: http.DefaultTransport}
	return c, server.Close
}

type rewriteHostTransport struct {
	target string
	base   http.RoundTripper
}

func (t rewriteHostTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	targetURL, err := url.Parse(t.target)
	if err != nil {
		return nil, err
	}
	req.URL.Scheme = targetURL.Scheme
	req.URL.Host = targetURL.Host
	return t.base.RoundTrip(req)
}

func TestSendEmailReturnsMessageID(t *testing.T) {
	c, closeFn := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &decoded))
		assert.Contains(t, decoded, "raw")
		w.Write([]byte(`{"id":"msg-1"}`))
	})
	defer closeFn()

	result, err := c.Execute(context.Background(), function.Function{Name: "GMAIL__SEND_EMAIL"},
		credential.Credentials{Kind: "oauth2", OAuth2: &credential.OAuth2Credentials{AccessToken: "test-token"}},
		map[string]interface{}{"sender": "me@example.com", "recipient": "you@example.com", "body": "hi", "subject": "hello"})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "msg-1", result.Body.(map[string]interface{})["message_id"])
}

func TestDraftsCreateRequiresRecipient(t *testing.T) {
	c := New(http.DefaultClient)
	result, err := c.Execute(context.Background(), function.Function{Name: "GMAIL__DRAFTS_CREATE"},
		credential.Credentials{Kind: "oauth2", OAuth2: &credential.OAuth2Credentials{AccessToken: "test-token"}},
		map[string]interface{}{"sender": "me@example.com", "body": "hi"})
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestRequiresOAuth2Credential(t *testing.T) {
	c := New(http.DefaultClient)
	_, err := c.Execute(context.Background(), function.Function{Name: "GMAIL__SEND_EMAIL"}, credential.Credentials{}, map[string]interface{}{})
	require.Error(t, err)
}
