package execution

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/agentcp/internal/app/domain/credential"
	"github.com/r3e-network/agentcp/internal/app/domain/function"
	"github.com/r3e-network/agentcp/internal/app/domain/securityscheme"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func restFunction(serverURL string) function.Function {
	return function.Function{
		Name:    "weather__get_forecast",
		AppName: "weather",
		RESTData: &function.RESTProtocolData{
			Method:    http.MethodGet,
			Path:      "/forecast",
			ServerURL: serverURL,
		},
	}
}

func TestRESTClientExecute_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"temp":72}`))
	}))
	defer srv.Close()

	client := NewRESTClient(srv.Client(), securityscheme.Scheme{Kind: securityscheme.KindNoAuth})
	result, err := client.Execute(context.Background(), restFunction(srv.URL), credential.Credentials{Kind: securityscheme.KindNoAuth}, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, http.StatusOK, result.StatusCode)
}

func TestRESTClientExecute_NarrowsResponseByJSONPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":{"items":[{"id":"abc"},{"id":"def"}]}}`))
	}))
	defer srv.Close()

	fn := restFunction(srv.URL)
	fn.RESTData.ResponseJSONPath = "data.items.0.id"

	client := NewRESTClient(srv.Client(), securityscheme.Scheme{Kind: securityscheme.KindNoAuth})
	result, err := client.Execute(context.Background(), fn, credential.Credentials{Kind: securityscheme.KindNoAuth}, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "abc", result.Body)
}

func TestRESTClientExecute_DownstreamErrorNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewRESTClient(srv.Client(), securityscheme.Scheme{Kind: securityscheme.KindNoAuth})
	result, err := client.Execute(context.Background(), restFunction(srv.URL), credential.Credentials{Kind: securityscheme.KindNoAuth}, nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 1, calls, "a valid HTTP response, even a 5xx, must not be retried")
}

func TestRESTClientExecute_RetriesTransportFailure(t *testing.T) {
	attempts := 0
	httpClient := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			attempts++
			if attempts < 3 {
				return nil, errors.New("connection refused")
			}
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       http.NoBody,
				Header:     http.Header{},
			}, nil
		}),
	}

	client := NewRESTClient(httpClient, securityscheme.Scheme{Kind: securityscheme.KindNoAuth})
	result, err := client.Execute(context.Background(), restFunction("http://example.invalid"), credential.Credentials{Kind: securityscheme.KindNoAuth}, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, attempts)
}

func TestRESTClientExecute_GivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	httpClient := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			attempts++
			return nil, errors.New("connection refused")
		}),
	}

	client := NewRESTClient(httpClient, securityscheme.Scheme{Kind: securityscheme.KindNoAuth})
	result, err := client.Execute(context.Background(), restFunction("http://example.invalid"), credential.Credentials{Kind: securityscheme.KindNoAuth}, nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, transportRetryPolicy.Attempts, attempts)
}
