// Package gmail implements the Gmail connector named in spec.md §4.8:
// builds a MIME message, base64url-encodes it, and calls the Gmail REST
// API directly with the Linked Account's OAuth2 bearer token, since no
// Go client mirrors the original's googleapiclient usage.
//
// Grounded on original_source/backend/aci/server/app_connectors/gmail.py's
// Gmail.send_email/drafts_create/drafts_update.
package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/r3e-network/agentcp/internal/apierrors"
	"github.com/r3e-network/agentcp/internal/app/domain/credential"
	"github.com/r3e-network/agentcp/internal/app/domain/function"
	"github.com/r3e-network/agentcp/internal/app/execution"
)

const baseURL = "https://gmail.googleapis.com/gmail/v1/users"

// Connector implements execution.Connector for the "GMAIL__*" Function
// family. The Linked Account's OAuth2 access token authenticates every
// call, matching the original's OAuth2Scheme-only connector.
type Connector struct {
	httpClient *http.Client
}

// New constructs a Connector. A nil httpClient uses http.DefaultClient.
func New(httpClient *http.Client) *Connector {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Connector{httpClient: httpClient}
}

var _ execution.Connector = (*Connector)(nil)

// Execute dispatches on fn.Name's operation suffix.
func (c *Connector) Execute(ctx context.Context, fn function.Function, creds credential.Credentials, input map[string]interface{}) (execution.Result, error) {
	if creds.OAuth2 == nil || creds.OAuth2.AccessToken == "" {
		return execution.Result{}, apierrors.New(apierrors.CodeUnexpectedError, "gmail: missing oauth2 access token credential")
	}

	sender, _ := input["sender"].(string)
	if sender == "" {
		return execution.Result{Success: false, Error: "gmail: sender is required"}, nil
	}
	raw, err := buildMIMEMessage(input)
	if err != nil {
		return execution.Result{Success: false, Error: err.Error()}, nil
	}

	switch fn.Name {
	case "GMAIL__SEND_EMAIL":
		return c.call(ctx, creds.OAuth2.AccessToken, http.MethodPost,
			fmt.Sprintf("%s/%s/messages/send", baseURL, sender),
			map[string]interface{}{"raw": raw}, "message_id")

	case "GMAIL__DRAFTS_CREATE":
		return c.call(ctx, creds.OAuth2.AccessToken, http.MethodPost,
			fmt.Sprintf("%s/%s/drafts", baseURL, sender),
			map[string]interface{}{"message": map[string]interface{}{"raw": raw}}, "draft_id")

	case "GMAIL__DRAFTS_UPDATE":
		draftID, _ := input["draft_id"].(string)
		if draftID == "" {
			return execution.Result{Success: false, Error: "gmail: draft_id is required"}, nil
		}
		return c.call(ctx, creds.OAuth2.AccessToken, http.MethodPut,
			fmt.Sprintf("%s/%s/drafts/%s", baseURL, sender, draftID),
			map[string]interface{}{"id": draftID, "message": map[string]interface{}{"raw": raw}}, "draft_id")

	default:
		return execution.Result{}, apierrors.New(apierrors.CodeNoImplementationFound, fmt.Sprintf("gmail: unknown operation %s", fn.Name))
	}
}

// buildMIMEMessage constructs the "to/subject/cc/bcc/body" headers the
// original's email.mime.text.MIMEText assembles, then base64url-encodes
// it the way the Gmail API's `raw` field requires.
func buildMIMEMessage(input map[string]interface{}) (string, error) {
	recipient, _ := input["recipient"].(string)
	if recipient == "" {
		return "", fmt.Errorf("gmail: recipient is required")
	}
	body, _ := input["body"].(string)

	var msg strings.Builder
	msg.WriteString("To: " + recipient + "\r\n")
	if subject, ok := input["subject"].(string); ok && subject != "" {
		msg.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	}
	if cc := addressList(input["cc"]); cc != "" {
		msg.WriteString("Cc: " + cc + "\r\n")
	}
	if bcc := addressList(input["bcc"]); bcc != "" {
		msg.WriteString("Bcc: " + bcc + "\r\n")
	}
	msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	msg.WriteString(body)

	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte(msg.String())), nil
}

func addressList(value interface{}) string {
	list, _ := value.([]interface{})
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return strings.Join(out, ", ")
}

func (c *Connector) call(ctx context.Context, accessToken, method, url string, payload map[string]interface{}, idField string) (execution.Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return execution.Result{}, apierrors.Wrap(apierrors.CodeUnexpectedError, "gmail: encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return execution.Result{}, apierrors.Wrap(apierrors.CodeUnexpectedError, "gmail: build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return execution.Result{}, apierrors.Wrap(apierrors.CodeUnexpectedError, "gmail: request failed", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return execution.Result{Success: false, Error: string(data)}, nil
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return execution.Result{}, apierrors.Wrap(apierrors.CodeUnexpectedError, "gmail: decode response", err)
	}
	id, _ := parsed["id"].(string)
	if id == "" {
		id = "unknown"
	}
	return execution.Result{Success: true, Body: map[string]interface{}{idField: id}}, nil
}
