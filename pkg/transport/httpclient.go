package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/bytebufferpool"
	"github.com/valyala/fasthttp"

	"parley/pkg/logger"
)

// Client talks to the chat backend over HTTP. It implements Sender,
// SessionProvisioner, Validator and PresenceSink.
type Client struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	http *fasthttp.Client
}

// NewClient builds a Client with sane connection limits.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Timeout: timeout,
		http: &fasthttp.Client{
			MaxConnsPerHost:     16,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
	}
}

// postJSON encodes in into a pooled buffer, POSTs it and decodes the
// response into out when non-nil.
func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := json.NewEncoder(buf).Encode(in); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.BaseURL + path)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	req.SetBody(buf.B)

	deadline := time.Now().Add(c.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return err
	}
	if sc := resp.StatusCode(); sc < 200 || sc > 299 {
		return fmt.Errorf("backend returned %d for %s", sc, path)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("decode response for %s: %w", path, err)
		}
	}
	return nil
}

// Send implements Sender against the backend append API.
func (c *Client) Send(ctx context.Context, conversationID string, outb Outbound) (Ack, error) {
	var ack Ack
	path := "/v1/conversations/" + conversationID + "/messages"
	if err := c.postJSON(ctx, path, outb, &ack); err != nil {
		logger.Warn("send_failed", "conversation", conversationID, "client_id", outb.ClientID, "error", err)
		return Ack{}, fmt.Errorf("%w: %v", ErrTransmissionFailed, err)
	}
	logger.Debug("send_ok", "conversation", conversationID, "client_id", outb.ClientID, "authoritative_id", ack.AuthoritativeID)
	return ack, nil
}

// ProvisionSession implements SessionProvisioner. The backend is idempotent:
// an existing session for this device is returned rather than duplicated.
func (c *Client) ProvisionSession(ctx context.Context, preferredName, preferredAvatar string) (string, error) {
	in := map[string]string{"preferred_name": preferredName, "preferred_avatar": preferredAvatar}
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := c.postJSON(ctx, "/v1/sessions", in, &out); err != nil {
		return "", err
	}
	if out.SessionID == "" {
		return "", fmt.Errorf("backend returned empty session id")
	}
	return out.SessionID, nil
}

// Validate implements Validator against the remote content check endpoint.
func (c *Client) Validate(ctx context.Context, req ValidationRequest) (ValidationResult, error) {
	var res ValidationResult
	if err := c.postJSON(ctx, "/v1/validate", req, &res); err != nil {
		return ValidationResult{}, err
	}
	return res, nil
}

// SetTyping implements PresenceSink, fire-and-forget: failures are logged
// and never propagate into the input path.
func (c *Client) SetTyping(conversationID, senderID string, isTyping bool) {
	in := map[string]any{"sender_id": senderID, "typing": isTyping}
	path := "/v1/conversations/" + conversationID + "/typing"
	if err := c.postJSON(context.Background(), path, in, nil); err != nil {
		logger.Debug("typing_signal_failed", "conversation", conversationID, "error", err)
	}
}
