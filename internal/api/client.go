// Package api is the REST side of the gateway: text and media replies, and
// the query proxy used for chat-log lookups.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"lunabot/internal/domain"
)

// StatusError is returned when the gateway answers with a non-2xx status.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway %s: HTTP %d: %s", e.Endpoint, e.StatusCode, strings.TrimSpace(e.Body))
}

// Config configures a Client.
type Config struct {
	BaseURL    string // e.g. http://127.0.0.1:5612
	Timeout    time.Duration
	QueryRetry RetryPolicy
	HTTPClient *http.Client // optional
	Logger     *slog.Logger
}

// Client talks to the gateway's REST endpoints. It implements domain.Replier.
type Client struct {
	baseURL    string
	http       *http.Client
	queryRetry RetryPolicy
	logger     *slog.Logger
}

var _ domain.Replier = (*Client)(nil)

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = SharedHTTPClient(cfg.Timeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		http:       cfg.HTTPClient,
		queryRetry: cfg.QueryRetry.withDefaults(),
		logger:     cfg.Logger,
	}
}

// Reply posts a text message to chatID. Replies are not retried.
func (c *Client) Reply(ctx context.Context, chatID int64, message string) error {
	payload, err := json.Marshal(map[string]any{"chat_id": chatID, "message": message})
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/reply", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build reply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("reply to %d: %w", chatID, err)
	}
	defer resp.Body.Close()
	return checkStatus("reply", resp)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// ReplyMedia uploads media to chatID as one multipart request with a
// "media" part per item.
func (c *Client) ReplyMedia(ctx context.Context, chatID int64, media []domain.Media) error {
	body := &bytes.Buffer{}
	mp := multipart.NewWriter(body)
	for i, m := range media {
		filename := m.Filename
		if filename == "" {
			filename = "file_" + strconv.Itoa(i)
		}
		contentType := m.MimeType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="media"; filename="%s"`, quoteEscaper.Replace(filename)))
		header.Set("Content-Type", contentType)
		part, err := mp.CreatePart(header)
		if err != nil {
			return fmt.Errorf("create media part: %w", err)
		}
		if _, err := part.Write(m.Data); err != nil {
			return fmt.Errorf("write media part: %w", err)
		}
	}
	if err := mp.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	endpoint := c.baseURL + "/reply_media?" + url.Values{"chat_id": {strconv.FormatInt(chatID, 10)}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("build media request: %w", err)
	}
	req.Header.Set("Content-Type", mp.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("reply media to %d: %w", chatID, err)
	}
	defer resp.Body.Close()
	return checkStatus("reply_media", resp)
}

// Query runs a parameterized query through the gateway and returns the raw
// JSON result (an array of row objects). Transient failures are retried.
func (c *Client) Query(ctx context.Context, query string, binds ...any) (json.RawMessage, error) {
	if binds == nil {
		binds = []any{}
	}
	payload, err := json.Marshal(map[string]any{"query": query, "binds": binds})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	resp, err := c.send(ctx, "query", c.queryRetry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus("query", resp); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read query result: %w", err)
	}
	return data, nil
}

// QueryRows runs query and decodes the rows into dst, typically a pointer to a slice.
func (c *Client) QueryRows(ctx context.Context, dst any, query string, binds ...any) error {
	data, err := c.Query(ctx, query, binds...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode query rows: %w", err)
	}
	return nil
}

// Close releases idle pooled connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

func checkStatus(endpoint string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(body)}
}
