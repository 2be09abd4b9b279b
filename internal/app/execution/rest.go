package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	core "github.com/r3e-network/agentcp/internal/app/core/service"
	"github.com/r3e-network/agentcp/internal/app/domain/credential"
	"github.com/r3e-network/agentcp/internal/app/domain/function"
	"github.com/r3e-network/agentcp/internal/app/domain/securityscheme"
)

// transportRetryPolicy retries a downstream dispatch only on transport-level
// failures (connection refused, timeout) — an HTTP response with any status
// code, success or failure, is never retried.
var transportRetryPolicy = core.RetryPolicy{
	Attempts:       3,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     1 * time.Second,
	Multiplier:     2,
}

// RESTClient builds the REST executor's HTTP calls from a Function's
// RESTProtocolData template, injecting the resolved credential into the
// bucket its security scheme designates (spec §4.8, §6 input buckets:
// path/query/header/cookie/body).
type RESTClient struct {
	httpClient *http.Client
	scheme     securityscheme.Scheme
}

// NewRESTClient constructs a RESTClient. scheme is the App's (possibly
// AppConfiguration-overridden) security scheme.
func NewRESTClient(httpClient *http.Client, scheme securityscheme.Scheme) *RESTClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &RESTClient{httpClient: httpClient, scheme: scheme}
}

// Execute implements RESTExecutor.
func (c *RESTClient) Execute(ctx context.Context, fn function.Function, creds credential.Credentials, input map[string]interface{}) (Result, error) {
	if fn.RESTData == nil {
		return Result{}, fmt.Errorf("execution: function %s has no rest protocol data", fn.Name)
	}

	path := fn.RESTData.Path
	query := map[string]string{}
	header := http.Header{}
	var body interface{}

	if bucket, ok := input["path"].(map[string]interface{}); ok {
		for key, value := range bucket {
			path = strings.ReplaceAll(path, "{"+key+"}", fmt.Sprint(value))
		}
	}
	if bucket, ok := input["query"].(map[string]interface{}); ok {
		for key, value := range bucket {
			query[key] = fmt.Sprint(value)
		}
	}
	if bucket, ok := input["header"].(map[string]interface{}); ok {
		for key, value := range bucket {
			header.Set(key, fmt.Sprint(value))
		}
	}
	if bucket, ok := input["body"]; ok {
		body = bucket
	}

	injectCredential(c.scheme, creds, query, header)

	url := fn.RESTData.ServerURL + path
	if len(query) > 0 {
		values := make([]string, 0, len(query))
		for k, v := range query {
			values = append(values, k+"="+v)
		}
		url += "?" + strings.Join(values, "&")
	}

	var bodyBytes []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return Result{}, fmt.Errorf("execution: marshal body: %w", err)
		}
		bodyBytes = raw
		header.Set("Content-Type", "application/json")
	}

	var resp *http.Response
	var respBody []byte
	transportErr := core.Retry(ctx, transportRetryPolicy, func() error {
		var reader io.Reader
		if bodyBytes != nil {
			reader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, fn.RESTData.Method, url, reader)
		if err != nil {
			return err
		}
		req.Header = header.Clone()

		r, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer r.Body.Close()
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return err
		}
		resp, respBody = r, b
		return nil
	})
	if transportErr != nil {
		return Result{Success: false, Error: transportErr.Error()}, nil
	}

	var decoded interface{}
	if len(respBody) > 0 {
		if path := fn.RESTData.ResponseJSONPath; path != "" {
			decoded = gjson.GetBytes(respBody, path).Value()
		} else if err := json.Unmarshal(respBody, &decoded); err != nil {
			decoded = string(respBody)
		}
	}

	result := Result{
		StatusCode: resp.StatusCode,
		Success:    resp.StatusCode >= 200 && resp.StatusCode < 300,
		Body:       decoded,
	}
	if !result.Success {
		result.Error = fmt.Sprintf("downstream returned status %d", resp.StatusCode)
	}
	return result, nil
}

// injectCredential writes the resolved credential into the query or
// header bucket the App's security scheme designates.
func injectCredential(scheme securityscheme.Scheme, creds credential.Credentials, query map[string]string, header http.Header) {
	switch creds.Kind {
	case securityscheme.KindOAuth2:
		if creds.OAuth2 == nil {
			return
		}
		tokenType := creds.OAuth2.TokenType
		if tokenType == "" {
			tokenType = "Bearer"
		}
		header.Set("Authorization", tokenType+" "+creds.OAuth2.AccessToken)
	case securityscheme.KindAPIKey:
		if creds.APIKey == nil || scheme.APIKey == nil {
			return
		}
		value := scheme.APIKey.Prefix + creds.APIKey.SecretKey
		switch scheme.APIKey.Location {
		case securityscheme.LocationHeader:
			header.Set(scheme.APIKey.Name, value)
		case securityscheme.LocationQuery:
			query[scheme.APIKey.Name] = value
		case securityscheme.LocationCookie:
			header.Add("Cookie", scheme.APIKey.Name+"="+value)
		}
	case securityscheme.KindNoAuth:
	}
}
