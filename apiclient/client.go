package apiclient

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

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Client calls the chama platform REST API.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

type options struct {
	httpClient *http.Client
	timeout    time.Duration
	breaker    *BreakerConfig
	log        *zap.Logger
}

// Option configures a [Client].
type Option func(*options)

// WithHTTPClient sets the underlying HTTP client. Its transport is wrapped by the breaker.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithTimeout bounds every request. Zero keeps the HTTP client's own timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithBreaker overrides [DefaultBreakerConfig].
func WithBreaker(cfg BreakerConfig) Option {
	return func(o *options) { o.breaker = &cfg }
}

// WithLogger sets the logger used for breaker state changes and request failures.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// New returns a Client for baseURL, e.g. "http://localhost:8000/api".
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", baseURL)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	breakerCfg := DefaultBreakerConfig()
	if o.breaker != nil {
		breakerCfg = *o.breaker
	}

	hc := &http.Client{}
	if o.httpClient != nil {
		copied := *o.httpClient
		hc = &copied
	}
	if o.timeout > 0 {
		hc.Timeout = o.timeout
	}
	next := hc.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	hc.Transport = breakerTransport{next: next, cb: newBreaker(breakerCfg, o.log)}

	return &Client{
		baseURL: baseURL,
		http:    hc,
		log:     o.log,
	}, nil
}

// BaseURL returns the normalized API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

/*
====================================
M-PESA LOGIN
====================================
*/

// InitiateResponse is the answer to a successful initiation.
type InitiateResponse struct {
	RequestID string `json:"request_id"`
	Message   string `json:"message,omitempty"`
	ExpiresIn int    `json:"expires_in,omitempty"`
}

// StatusResponse is one poll answer. AccessToken is set once the subscriber
// confirmed; otherwise Status is "pending", "expired" or "failed".
type StatusResponse struct {
	AccessToken string `json:"access_token,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
	Status      string `json:"status,omitempty"`
	Message     string `json:"message,omitempty"`
}

// InitiateMpesaLogin asks the platform to push an M-Pesa prompt to phoneNumber.
func (c *Client) InitiateMpesaLogin(ctx context.Context, phoneNumber string) (InitiateResponse, error) {
	var out InitiateResponse
	body := map[string]string{"phone_number": phoneNumber}
	if err := c.do(ctx, http.MethodPost, "/auth/mpesa/login/initiate", "", body, &out); err != nil {
		return InitiateResponse{}, err
	}
	if out.RequestID == "" {
		return InitiateResponse{}, fmt.Errorf("%w: missing request_id", ErrDecode)
	}
	return out, nil
}

// MpesaLoginStatus fetches the current state of an initiated login.
func (c *Client) MpesaLoginStatus(ctx context.Context, requestID string) (StatusResponse, error) {
	var out StatusResponse
	path := "/auth/mpesa/login/status/" + url.PathEscape(requestID)
	if err := c.do(ctx, http.MethodGet, path, "", nil, &out); err != nil {
		return StatusResponse{}, err
	}
	return out, nil
}

/*
====================================
TOKENS & ACCOUNTS
====================================
*/

// Verify reports whether token is accepted by the platform. Only a 200 answer
// counts as valid; other statuses return (false, nil). Transport failures
// return an error wrapping [ErrTransport].
func (c *Client) Verify(ctx context.Context, token string) (bool, error) {
	resp, err := c.send(ctx, http.MethodGet, "/auth/verify", token, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	return resp.StatusCode == http.StatusOK, nil
}

// TokenResponse carries an access token issued by password login or signup.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

// Login exchanges a phone number and password for an access token.
func (c *Client) Login(ctx context.Context, phoneNumber, password string) (TokenResponse, error) {
	var out TokenResponse
	body := map[string]string{"phone_number": phoneNumber, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", body, &out); err != nil {
		return TokenResponse{}, err
	}
	if out.AccessToken == "" {
		return TokenResponse{}, fmt.Errorf("%w: missing access_token", ErrDecode)
	}
	return out, nil
}

// SignupRequest is the account creation payload.
type SignupRequest struct {
	Username    string `json:"username"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

// Signup creates an account and returns the token for the new user.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (TokenResponse, error) {
	var out TokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/signup", "", req, &out); err != nil {
		return TokenResponse{}, err
	}
	if out.AccessToken == "" {
		return TokenResponse{}, fmt.Errorf("%w: missing access_token", ErrDecode)
	}
	return out, nil
}

// Chama is one membership of the authenticated user.
type Chama struct {
	ChamaID     int64  `json:"chama_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Role        string `json:"role"`
}

// MyChamas lists the chamas the token's user belongs to.
func (c *Client) MyChamas(ctx context.Context, token string) ([]Chama, error) {
	var out []Chama
	if err := c.do(ctx, http.MethodGet, "/my-chamas", token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

/*
====================================
TRANSPORT
====================================
*/

func (c *Client) do(ctx context.Context, method, path, token string, in, out interface{}) error {
	resp, err := c.send(ctx, method, path, token, in)
	if err != nil {
		return err
	}
	return readResponse(resp, out)
}

func readResponse(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Detail: parseDetail(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path, token string, in interface{}) (*http.Response, error) {
	if in == nil {
		return c.sendBody(ctx, method, path, token, nil, "")
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return c.sendBody(ctx, method, path, token, bytes.NewReader(payload), "application/json")
}

func (c *Client) sendBody(ctx context.Context, method, path, token string, body io.Reader, contentType string) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("api request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return resp, nil
}

// parseDetail pulls the human-readable "detail" out of an error body. The
// platform sometimes answers with a validation list instead of a string.
func parseDetail(data []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil {
		return s
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
