// Package backend talks to the external listing API: credential login and
// multipart car submission.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/carportal/carportal/internal/portal/carform"
	"github.com/carportal/carportal/internal/portal/metrics"
	"github.com/carportal/carportal/internal/portal/observability"
)

const (
	loginEndpoint  = "/auth/login"
	submitEndpoint = "/car/submit"

	maxMessageLen = 300
)

// ErrMissingToken is returned when a submission is attempted without a token.
var ErrMissingToken = errors.New("backend: token is required")

// Error describes a failed upstream call. Message is safe to display.
type Error struct {
	Endpoint string
	Status   int
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("backend: %s: %v", e.Endpoint, e.Err)
	}
	if e.Message == "" {
		return fmt.Sprintf("backend: %s returned %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("backend: %s returned %d: %s", e.Endpoint, e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage returns the text shown next to the form.
func (e *Error) UserMessage() string { return e.Message }

// HTTPClient matches the subset of http.Client used by Client.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Client implements loginform.Authenticator and carform.Submitter over HTTP.
type Client struct {
	base       *url.URL
	client     HTTPClient
	authScheme string
	sanitizer  *bluemonday.Policy
	now        func() time.Time
}

// Option customises a Client.
type Option func(*Client)

// WithAuthScheme prefixes the Authorization header, e.g. "Bearer". Empty sends the raw token.
func WithAuthScheme(scheme string) Option {
	return func(c *Client) {
		c.authScheme = strings.TrimSpace(scheme)
	}
}

// WithClock overrides the clock used for latency metrics.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient constructs a Client rooted at baseURL.
func NewClient(baseURL string, client HTTPClient, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("backend: base URL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("backend: parse base URL: %w", err)
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}
	if client == nil {
		client = http.DefaultClient
	}
	c := &Client{
		base:      parsed,
		client:    client,
		sanitizer: bluemonday.StrictPolicy(),
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login exchanges credentials for a token. Credentials are sent exactly as given.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(loginRequest{Email: email, Password: password}); err != nil {
		return "", fmt.Errorf("backend: encode login: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, loginEndpoint, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req, loginEndpoint)
	if err != nil {
		return "", &Error{Endpoint: loginEndpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", c.errorFromResponse(resp, loginEndpoint, "")
	}

	var payload loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("backend: decode login: %w", err)
	}
	return payload.Token, nil
}

// SubmitCar posts the listing as multipart/form-data. Text fields are written
// first in their canonical order, then each image under the "images" part.
func (c *Client) SubmitCar(ctx context.Context, token string, listing carform.Listing) error {
	if strings.TrimSpace(token) == "" {
		return ErrMissingToken
	}

	body, contentType, err := encodeListing(listing)
	if err != nil {
		return err
	}

	req, err := c.newRequest(ctx, http.MethodPost, submitEndpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", c.authorization(token))

	resp, err := c.do(req, submitEndpoint)
	if err != nil {
		return &Error{Endpoint: submitEndpoint, Message: "Network Error", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fallback := "Request failed with status code " + strconv.Itoa(resp.StatusCode)
		return c.errorFromResponse(resp, submitEndpoint, fallback)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	return nil
}

func encodeListing(listing carform.Listing) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for _, name := range carform.FieldOrder {
		if err := mw.WriteField(name, listing.Fields.Value(name)); err != nil {
			return nil, "", fmt.Errorf("backend: write field %s: %w", name, err)
		}
	}
	for _, att := range listing.Attachments {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename="%s"`, escapeQuotes(att.Filename)))
		ct := att.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		header.Set("Content-Type", ct)
		part, err := mw.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("backend: create image part: %w", err)
		}
		if _, err := part.Write(att.Data); err != nil {
			return nil, "", fmt.Errorf("backend: write image part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("backend: close multipart: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func (c *Client) authorization(token string) string {
	if c.authScheme == "" {
		return token
	}
	return c.authScheme + " " + token
}

func (c *Client) do(req *http.Request, endpoint string) (*http.Response, error) {
	ctx, end := observability.StartClientSpan(req.Context(), "backend "+endpoint, req)
	req = req.WithContext(ctx)

	start := c.now()
	resp, err := c.client.Do(req)
	code, status := "error", 0
	if err == nil {
		status = resp.StatusCode
		code = strconv.Itoa(status)
	}
	metrics.ObserveUpstream(endpoint, code, c.now().Sub(start))
	end(status, err)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(endpoint), body)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) resolve(endpoint string) string {
	ref := &url.URL{Path: strings.TrimPrefix(endpoint, "/")}
	return c.base.ResolveReference(ref).String()
}

// errorFromResponse reads the nested "error" field of a failure body. It may be
// a plain string or an object carrying "message".
func (c *Client) errorFromResponse(resp *http.Response, endpoint, fallback string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	message := ""
	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil && len(payload.Error) > 0 {
		var text string
		if json.Unmarshal(payload.Error, &text) == nil {
			message = text
		} else {
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(payload.Error, &nested) == nil {
				message = nested.Message
			}
		}
	}

	message = c.clean(message)
	if message == "" {
		message = fallback
	}
	return &Error{Endpoint: endpoint, Status: resp.StatusCode, Message: message}
}

func (c *Client) clean(message string) string {
	message = strings.TrimSpace(html.UnescapeString(c.sanitizer.Sanitize(message)))
	if len([]rune(message)) > maxMessageLen {
		message = string([]rune(message)[:maxMessageLen]) + "…"
	}
	return message
}
