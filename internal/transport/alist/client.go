// Package alist implements transport.FS and transport.TaskQueue on top of
// the Alist v3 HTTP API (also served by OpenList).
package alist

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"

	"github.com/bamsammich/alist-sync/internal/transport"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	_ transport.FS        = (*Client)(nil)
	_ transport.TaskQueue = (*Client)(nil)
)

// Options configures a Client.
type Options struct {
	BaseURL   string
	Username  string
	Password  string
	Token     string
	UserAgent string
	// Timeout bounds each API call and the wait for response headers on
	// downloads and uploads. Transfer bodies are not bounded by it.
	Timeout time.Duration
	// TaskPoll is how often task queues are refreshed once watched.
	TaskPoll time.Duration
	Insecure bool
	Logger   *slog.Logger
}

// Client talks to one Alist server. It is safe for concurrent use.
type Client struct {
	http     *resty.Client
	opts     Options
	log      *slog.Logger
	mu       sync.Mutex
	token    string
	watchers map[transport.TaskKind]*taskWatch
	closed   bool
}

// APIError is a non-200 code reported inside the response envelope.
type APIError struct {
	Op      string
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("alist %s: [%d] %s", e.Op, e.Code, e.Message)
}

// Is maps server "not found" messages onto transport.ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == transport.ErrNotFound &&
		strings.Contains(strings.ToLower(e.Message), "not found")
}

// envelope is the wrapper around every Alist API response.
type envelope struct {
	Code    int                 `json:"code"`
	Message string              `json:"message"`
	Data    jsoniter.RawMessage `json:"data"`
}

// New creates a Client. No request is made until the first call.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.TaskPoll <= 0 {
		opts.TaskPoll = time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "alist-sync"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = opts.Timeout
	if opts.Insecure {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via --insecure
	}

	// No client-wide timeout: it would also cover streamed bodies.
	rc := resty.NewWithClient(&http.Client{Transport: tr}).
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetHeader("User-Agent", opts.UserAgent).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal).
		SetPreRequestHook(streamContentLength)

	return &Client{
		http:     rc,
		opts:     opts,
		log:      opts.Logger.With("server", opts.BaseURL),
		token:    opts.Token,
		watchers: make(map[transport.TaskKind]*taskWatch),
	}
}

// streamContentLength carries an explicit Content-Length header onto the raw
// request so streamed uploads are not sent chunked.
func streamContentLength(_ *resty.Client, req *http.Request) error {
	if v := req.Header.Get("Content-Length"); v != "" && req.ContentLength <= 0 {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("content-length %q: %w", v, err)
		}
		req.ContentLength = n
	}
	return nil
}

// Login exchanges username and password for a session token.
func (c *Client) Login(ctx context.Context) error {
	var data struct {
		Token string `json:"token"`
	}
	body := map[string]string{"username": c.opts.Username, "password": c.opts.Password}
	if err := c.call(ctx, http.MethodPost, "/api/auth/login", body, &data, false); err != nil {
		return err
	}
	c.mu.Lock()
	c.token = data.Token
	c.mu.Unlock()
	c.log.Debug("logged in", "user", c.opts.Username)
	return nil
}

func (c *Client) currentToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	tok := c.token
	c.mu.Unlock()
	if tok != "" || c.opts.Username == "" {
		return tok, nil
	}
	if err := c.Login(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, nil
}

// do sends an authenticated API call and decodes the envelope's data into
// out (which may be nil). A 401 envelope triggers one re-login when
// credentials are available.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	err := c.call(ctx, method, path, body, out, true)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized && c.opts.Username != "" {
		if lerr := c.Login(ctx); lerr != nil {
			return lerr
		}
		return c.call(ctx, method, path, body, out, true)
	}
	return err
}

func (c *Client) call(ctx context.Context, method, path string, body, out any, auth bool) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req := c.http.R().SetContext(ctx)
	if auth {
		tok, err := c.currentToken(ctx)
		if err != nil {
			return err
		}
		if tok != "" {
			req.SetHeader("Authorization", tok)
		}
	}
	if body != nil {
		req.SetBody(body)
	}
	return c.send(req, method, path, out)
}

func (c *Client) send(req *resty.Request, method, path string, out any) error {
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("alist %s: %w", path, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return &APIError{Op: path, Code: resp.StatusCode(), Message: strings.TrimSpace(resp.String())}
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("alist %s: decode envelope: %w", path, err)
	}
	if env.Code != http.StatusOK {
		return &APIError{Op: path, Code: env.Code, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("alist %s: decode data: %w", path, err)
	}
	return nil
}

// ID identifies the server in path lock keys.
func (c *Client) ID() string { return strings.TrimRight(c.opts.BaseURL, "/") }

// Close stops background task watchers.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, w := range c.watchers {
		w.stop()
	}
	return nil
}
