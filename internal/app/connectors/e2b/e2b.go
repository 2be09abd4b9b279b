// Package e2b implements the E2B sandbox connector named in spec.md §4.8:
// it wraps a code-interpreter sandbox accessed over HTTP/websocket rather
// than a Go SDK, since no E2B client ships in the Go ecosystem.
//
// Grounded on original_source/backend/aci/server/app_connectors/e2b.py's
// E2b.run_code, which opens a Sandbox with the Linked Account's API key
// and returns `{"text": execution.text}`. The live-output variant
// (STREAM_STDOUT) is this project's own addition, carried over the
// teacher's gorilla/websocket dependency the same way the sandbox's own
// process API streams command output over a websocket.
package e2b

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/r3e-network/agentcp/internal/apierrors"
	"github.com/r3e-network/agentcp/internal/app/domain/credential"
	"github.com/r3e-network/agentcp/internal/app/domain/function"
	"github.com/r3e-network/agentcp/internal/app/execution"
)

const defaultBaseURL = "https://api.e2b.dev"

// Connector implements execution.Connector for the "E2B__*" Function
// family. The Linked Account's API-key credential authenticates every
// call, matching the original's APIKeyScheme-only connector.
type Connector struct {
	httpClient *http.Client
	dialer     *websocket.Dialer
	baseURL    string
}

// New constructs a Connector. A nil httpClient uses http.DefaultClient.
func New(httpClient *http.Client) *Connector {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Connector{httpClient: httpClient, dialer: websocket.DefaultDialer, baseURL: defaultBaseURL}
}

var _ execution.Connector = (*Connector)(nil)

// Execute dispatches on fn.Name's operation suffix.
func (c *Connector) Execute(ctx context.Context, fn function.Function, creds credential.Credentials, input map[string]interface{}) (execution.Result, error) {
	if creds.APIKey == nil || creds.APIKey.Empty() {
		return execution.Result{}, apierrors.New(apierrors.CodeUnexpectedError, "e2b: missing api key credential")
	}

	switch fn.Name {
	case "E2B__RUN_CODE":
		return c.runCode(ctx, creds.APIKey.SecretKey, input)
	case "E2B__STREAM_STDOUT":
		return c.streamStdout(ctx, creds.APIKey.SecretKey, input)
	default:
		return execution.Result{}, apierrors.New(apierrors.CodeNoImplementationFound, fmt.Sprintf("e2b: unknown operation %s", fn.Name))
	}
}

// runCode executes code in a fresh sandbox and returns its captured text
// output, matching E2b.run_code.
func (c *Connector) runCode(ctx context.Context, apiKey string, input map[string]interface{}) (execution.Result, error) {
	code, _ := input["code"].(string)

	body, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return execution.Result{}, apierrors.Wrap(apierrors.CodeUnexpectedError, "e2b: encode run_code request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/code-interpreter/execute", bytes.NewReader(body))
	if err != nil {
		return execution.Result{}, apierrors.Wrap(apierrors.CodeUnexpectedError, "e2b: build run_code request", err)
	}
	req.Header.Set("X-API-Key", apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return execution.Result{}, apierrors.Wrap(apierrors.CodeUnexpectedError, "e2b: run_code request failed", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return execution.Result{Success: false, Error: string(data)}, nil
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return execution.Result{}, apierrors.Wrap(apierrors.CodeUnexpectedError, "e2b: decode run_code response", err)
	}
	return execution.Result{Success: true, Body: map[string]interface{}{"text": parsed.Text}}, nil
}

// streamStdout opens a websocket to a running sandbox's process API and
// collects stdout lines for a shell command until the stream closes or
// the request's deadline elapses.
func (c *Connector) streamStdout(ctx context.Context, apiKey string, input map[string]interface{}) (execution.Result, error) {
	sandboxID, _ := input["sandbox_id"].(string)
	command, _ := input["command"].(string)
	if sandboxID == "" || command == "" {
		return execution.Result{Success: false, Error: "e2b: sandbox_id and command are required"}, nil
	}

	wsURL := fmt.Sprintf("wss://%s/sandboxes/%s/process/stream?cmd=%s",
		strings.TrimPrefix(c.baseURL, "https://"), url.PathEscape(sandboxID), url.QueryEscape(command))

	header := http.Header{}
	header.Set("X-API-Key", apiKey)
	conn, resp, err := c.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return execution.Result{}, apierrors.Wrap(apierrors.CodeUnexpectedError, "e2b: open stdout stream", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(30 * time.Second)
	}
	_ = conn.SetReadDeadline(deadline)

	var lines []string
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		lines = append(lines, string(msg))
	}
	return execution.Result{Success: true, Body: map[string]interface{}{"stdout": lines}}, nil
}
