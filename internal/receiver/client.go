// Package receiver is the HTTP client for the external ingestion service:
// image/text forwarding, registration-status lookup, and OAuth initiation.
// Every operation is a single outbound request with no retry.
package receiver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pixrelay/pixrelay/internal/channel"
)

const (
	tokenHeader     = "x-receiver-token"
	requestIDHeader = "X-Request-Id"

	// Paths relative to the receiver host; the forward endpoint is the
	// configured base URL itself.
	statusPath = "/api/receiver/register/status"
	oauthPath  = "/api/receiver/oauth/initiate"

	sourceTag = "discord"

	maxBodyBytes = 1 << 20
)

// ErrNotRegistered reports that the attachment gate rejected the author:
// the registration lookup returned no linked email.
var ErrNotRegistered = errors.New("author has no registered account")

// Client talks to the receiver service. All endpoints share the base URL's
// scheme and host; lookup and OAuth initiation swap the path.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a receiver client for the given base URL and shared
// secret token.
func NewClient(log *slog.Logger, baseURL, token string) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse receiver url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("receiver url must be absolute: %s", baseURL)
	}
	return &Client{
		baseURL: parsed,
		token:   token,
		http:    &http.Client{Timeout: 60 * time.Second},
		logger:  log.With(slog.String("component", "receiver")),
	}, nil
}

// LookupEmail returns the email linked to the given Discord user id, or ""
// when the user is unregistered or the lookup failed. The two outcomes are
// deliberately collapsed; callers that need the distinction do not exist in
// this bridge.
func (c *Client) LookupEmail(ctx context.Context, discordID string) string {
	email, err := c.fetchRegisteredEmail(ctx, discordID)
	if err != nil {
		c.logger.Warn("registration lookup failed",
			slog.String("discord_id", discordID),
			slog.Any("error", err),
		)
		return ""
	}
	return email
}

func (c *Client) fetchRegisteredEmail(ctx context.Context, discordID string) (string, error) {
	endpoint := c.endpointURL(statusPath)
	endpoint.RawQuery = url.Values{"discordId": {discordID}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build status request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("status request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read status response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}

	var status statusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return "", fmt.Errorf("decode status response: %w", err)
	}
	if !status.Registered || status.User == nil || strings.TrimSpace(status.User.Email) == "" {
		return "", nil
	}
	return strings.TrimSpace(status.User.Email), nil
}

// Initiate starts the OAuth registration flow for a Discord user and
// returns the time-limited authentication URL.
func (c *Client) Initiate(ctx context.Context, discordID, username string) (string, error) {
	payload, err := json.Marshal(initiateRequest{
		DiscordID:       discordID,
		DiscordUsername: username,
	})
	if err != nil {
		return "", fmt.Errorf("encode initiate request: %w", err)
	}

	endpoint := c.endpointURL(oauthPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build initiate request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("initiate request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read initiate response: %w", err)
	}

	var initiated initiateResponse
	decodeErr := json.Unmarshal(body, &initiated)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || decodeErr != nil || !initiated.Success {
		if decodeErr == nil && strings.TrimSpace(initiated.Error) != "" {
			return "", errors.New(strings.TrimSpace(initiated.Error))
		}
		return "", fmt.Errorf("initiate endpoint returned %d", resp.StatusCode)
	}
	if strings.TrimSpace(initiated.AuthURL) == "" {
		return "", fmt.Errorf("initiate response missing auth url")
	}
	return initiated.AuthURL, nil
}

// ForwardAttachment relays one image attachment. The registration gate runs
// here: an author without a linked email yields ErrNotRegistered and no
// upload is attempted. Fetch and upload are sequential, one request each.
func (c *Client) ForwardAttachment(ctx context.Context, msg channel.InboundMessage, att channel.Attachment) (ForwardResult, error) {
	email := c.LookupEmail(ctx, msg.AuthorID)
	if email == "" {
		return ForwardResult{}, ErrNotRegistered
	}

	data, err := c.fetchAttachment(ctx, att.URL)
	if err != nil {
		return ForwardResult{}, err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := createFilePart(writer, att.Name, att.ContentType)
	if err != nil {
		return ForwardResult{}, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return ForwardResult{}, fmt.Errorf("write attachment bytes: %w", err)
	}
	fields := map[string]string{
		"source":           sourceTag,
		"discordMessageId": msg.ID,
		"discordChannelId": msg.ChannelID,
		"discordAuthorId":  msg.AuthorID,
		"userEmail":        email,
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return ForwardResult{}, fmt.Errorf("write form field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return ForwardResult{}, fmt.Errorf("close multipart body: %w", err)
	}

	return c.post(ctx, &buf, writer.FormDataContentType(), slog.String("attachment", att.Name))
}

// ForwardText relays trimmed message text. All-whitespace content is a
// failure result with no HTTP request issued.
func (c *Client) ForwardText(ctx context.Context, msg channel.InboundMessage) (ForwardResult, error) {
	text := strings.TrimSpace(msg.Content)
	if text == "" {
		return ForwardResult{}, nil
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	fields := map[string]string{
		"text":             text,
		"source":           sourceTag,
		"discordMessageId": msg.ID,
		"discordChannelId": msg.ChannelID,
		"discordAuthorId":  msg.AuthorID,
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return ForwardResult{}, fmt.Errorf("write form field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return ForwardResult{}, fmt.Errorf("close multipart body: %w", err)
	}

	return c.post(ctx, &buf, writer.FormDataContentType(), slog.String("message_id", msg.ID))
}

func (c *Client) fetchAttachment(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build attachment request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download attachment, status: %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	return data, nil
}

// post uploads the multipart body to the forward endpoint. Success requires
// a 2xx status and a JSON-decodable body; everything else is a failure with
// the status and body logged.
func (c *Client) post(ctx context.Context, body io.Reader, contentType string, attrs ...slog.Attr) (ForwardResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.String(), body)
	if err != nil {
		return ForwardResult{}, fmt.Errorf("build forward request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return ForwardResult{}, fmt.Errorf("forward request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return ForwardResult{}, fmt.Errorf("read forward response: %w", err)
	}

	var parsed forwardResponse
	decodeErr := json.Unmarshal(respBody, &parsed)
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300 && decodeErr == nil
	if !ok {
		logAttrs := append([]slog.Attr{
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(respBody)),
		}, attrs...)
		c.logger.LogAttrs(ctx, slog.LevelWarn, "forward rejected", logAttrs...)
	}
	return ForwardResult{OK: ok, Body: respBody}, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set(tokenHeader, c.token)
	req.Header.Set(requestIDHeader, uuid.NewString())
}

func (c *Client) endpointURL(path string) *url.URL {
	endpoint := *c.baseURL
	endpoint.Path = path
	endpoint.RawQuery = ""
	return &endpoint
}

func createFilePart(writer *multipart.Writer, name, contentType string) (io.Writer, error) {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	if strings.TrimSpace(contentType) != "" {
		header.Set("Content-Type", contentType)
	}
	return writer.CreatePart(header)
}
