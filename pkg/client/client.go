// Package client provides a Go client for the SkillSwap trade API.
//
// Every trade operation returns the trade as the caller sees it. Failures
// reported by the server come back as *APIError, which unwraps to the
// matching trade sentinel so callers can use errors.Is(err, trade.ErrNotReady)
// and friends. Transport failures come back as *NetworkError, which unwraps to
// trade.ErrNetwork.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sudo-init-do/skillswap/internal/auth"
	"github.com/sudo-init-do/skillswap/internal/trade"
)

// Client represents a SkillSwap API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	token      string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithUserAgent sets a custom user agent.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithToken authenticates every request with a bearer token.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// New creates a new SkillSwap API client.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "http"
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:   strings.TrimSuffix(u.String(), "/"),
		userAgent: "skillswap-client/1.0",
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Token returns the bearer token currently in use.
func (c *Client) Token() string { return c.token }

// HealthCheck checks if the service is healthy.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, "/health", nil, nil)
}

// Signup registers an account and keeps the issued token for later calls.
func (c *Client) Signup(ctx context.Context, req auth.SignupRequest) (*auth.TokenResponse, error) {
	var resp auth.TokenResponse
	if err := c.doRequest(ctx, http.MethodPost, "/auth/signup", req, &resp); err != nil {
		return nil, fmt.Errorf("signing up: %w", err)
	}
	c.token = resp.Token
	return &resp, nil
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (*auth.TokenResponse, error) {
	var resp auth.TokenResponse
	req := auth.LoginRequest{Email: email, Password: password}
	if err := c.doRequest(ctx, http.MethodPost, "/auth/login", req, &resp); err != nil {
		return nil, fmt.Errorf("logging in: %w", err)
	}
	c.token = resp.Token
	return &resp, nil
}

// CreateRequest posts a skill request. Deadline is sent as a calendar date.
func (c *Client) CreateRequest(ctx context.Context, in trade.CreateInput) (*trade.TradeView, error) {
	req := map[string]string{
		"skill_needed": in.SkillNeeded,
		"description":  in.Description,
		"deadline":     in.Deadline.Format(time.DateOnly),
	}
	var v trade.TradeView
	if err := c.doRequest(ctx, http.MethodPost, "/marketplace/requests", req, &v); err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	return &v, nil
}

type listResponse struct {
	Requests []trade.TradeView `json:"requests"`
}

// ListOpen browses posted requests.
func (c *Client) ListOpen(ctx context.Context, f trade.ListFilter) ([]trade.TradeView, error) {
	q := url.Values{}
	if f.Skill != "" {
		q.Set("skill", f.Skill)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	var resp listResponse
	if err := c.doRequest(ctx, http.MethodGet, withQuery("/marketplace/requests", q), nil, &resp); err != nil {
		return nil, fmt.Errorf("listing requests: %w", err)
	}
	return resp.Requests, nil
}

// ListMine returns the caller's active trades, or the archived ones.
func (c *Client) ListMine(ctx context.Context, archived bool) ([]trade.TradeView, error) {
	q := url.Values{}
	if archived {
		q.Set("archived", "true")
	}
	var resp listResponse
	if err := c.doRequest(ctx, http.MethodGet, withQuery("/marketplace/requests/me", q), nil, &resp); err != nil {
		return nil, fmt.Errorf("listing my trades: %w", err)
	}
	return resp.Requests, nil
}

// Get loads one trade.
func (c *Client) Get(ctx context.Context, requestID string) (*trade.TradeView, error) {
	return c.tradeCall(ctx, http.MethodGet, requestPath(requestID, ""), nil, "loading trade")
}

// Cancel withdraws a posted or accepted request.
func (c *Client) Cancel(ctx context.Context, requestID string) (*trade.TradeView, error) {
	return c.tradeCall(ctx, http.MethodPost, requestPath(requestID, "/cancel"), nil, "cancelling request")
}

// Delete removes a posted request.
func (c *Client) Delete(ctx context.Context, requestID string) error {
	if err := c.doRequest(ctx, http.MethodDelete, requestPath(requestID, ""), nil, nil); err != nil {
		return fmt.Errorf("deleting request: %w", err)
	}
	return nil
}

// ExpressInterest offers skillOffered on someone else's request.
func (c *Client) ExpressInterest(ctx context.Context, requestID, skillOffered string) (*trade.Interest, *trade.TradeView, error) {
	var resp struct {
		Interest trade.Interest  `json:"interest"`
		Trade    trade.TradeView `json:"trade"`
	}
	req := map[string]string{"skill_offered": skillOffered}
	if err := c.doRequest(ctx, http.MethodPost, requestPath(requestID, "/interests"), req, &resp); err != nil {
		return nil, nil, fmt.Errorf("expressing interest: %w", err)
	}
	return &resp.Interest, &resp.Trade, nil
}

// Accept picks interestID as the partner for its request.
func (c *Client) Accept(ctx context.Context, interestID string) (*trade.TradeView, error) {
	return c.tradeCall(ctx, http.MethodPost, interestPath(interestID, "/accept"), nil, "accepting interest")
}

// Decline turns down interestID. Declining an interest that is already
// declined is not an error; the returned view is nil in that case when the
// server reported the repeat as a conflict.
func (c *Client) Decline(ctx context.Context, interestID string) (*trade.TradeView, error) {
	v, err := c.tradeCall(ctx, http.MethodPost, interestPath(interestID, "/decline"), nil, "declining interest")
	if err != nil && isAlreadyDeclined(err) {
		return nil, nil
	}
	return v, err
}

func isAlreadyDeclined(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == "already_declined" ||
		(apiErr.Code == "invalid_state" && strings.Contains(strings.ToLower(apiErr.Message), "already declined"))
}

// OpenChannel returns the conversation id for an accepted request.
func (c *Client) OpenChannel(ctx context.Context, requestID string) (string, error) {
	var resp struct {
		ChannelID string `json:"channel_id"`
	}
	if err := c.doRequest(ctx, http.MethodPost, requestPath(requestID, "/channel"), nil, &resp); err != nil {
		return "", fmt.Errorf("opening channel: %w", err)
	}
	return resp.ChannelID, nil
}

// SubmitDetails records the caller's side of the finalization gate.
func (c *Client) SubmitDetails(ctx context.Context, requestID string, d trade.Details) (*trade.TradeView, error) {
	return c.tradeCall(ctx, http.MethodPost, requestPath(requestID, "/details"), d, "submitting details")
}

// DetailStatus reports which participants have submitted details.
func (c *Client) DetailStatus(ctx context.Context, requestID string) (*trade.GateStatus, error) {
	var g trade.GateStatus
	if err := c.doRequest(ctx, http.MethodGet, requestPath(requestID, "/details/status"), nil, &g); err != nil {
		return nil, fmt.Errorf("loading detail status: %w", err)
	}
	return &g, nil
}

// Evaluate asks the server to score both sides.
func (c *Client) Evaluate(ctx context.Context, requestID string) (*trade.TradeView, error) {
	return c.tradeCall(ctx, http.MethodPost, requestPath(requestID, "/evaluate"), nil, "evaluating trade")
}

// Confirm accepts the assessment and starts the trade.
func (c *Client) Confirm(ctx context.Context, requestID string) (*trade.TradeView, error) {
	return c.tradeCall(ctx, http.MethodPost, requestPath(requestID, "/confirm"), nil, "confirming trade")
}

// RejectEvaluation discards the assessment.
func (c *Client) RejectEvaluation(ctx context.Context, requestID string) (*trade.TradeView, error) {
	return c.tradeCall(ctx, http.MethodPost, requestPath(requestID, "/reject"), nil, "rejecting evaluation")
}

// UploadFile stores one file and returns its reference for SubmitProof or
// Details.ContextImage.
func (c *Client) UploadFile(ctx context.Context, name string, r io.Reader) (*trade.FileRef, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/files", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var ref trade.FileRef
	if err := c.send(req, &ref); err != nil {
		return nil, fmt.Errorf("uploading file: %w", err)
	}
	return &ref, nil
}

// SubmitProof submits files uploaded earlier as the caller's proof.
func (c *Client) SubmitProof(ctx context.Context, requestID string, files []trade.FileRef) (*trade.TradeView, error) {
	req := map[string][]trade.FileRef{"files": files}
	return c.tradeCall(ctx, http.MethodPost, requestPath(requestID, "/proof"), req, "submitting proof")
}

// ApproveProof approves the partner's proof.
func (c *Client) ApproveProof(ctx context.Context, requestID string) (*trade.TradeView, error) {
	return c.tradeCall(ctx, http.MethodPost, requestPath(requestID, "/proof/approve"), nil, "approving proof")
}

// RejectProof sends the partner's proof back.
func (c *Client) RejectProof(ctx context.Context, requestID string) (*trade.TradeView, error) {
	return c.tradeCall(ctx, http.MethodPost, requestPath(requestID, "/proof/reject"), nil, "rejecting proof")
}

// RatingResponse is what SubmitRating returns.
type RatingResponse struct {
	Trade     trade.TradeView             `json:"trade"`
	Completed bool                        `json:"completed"`
	Progress  []trade.ParticipantProgress `json:"progress"`
}

// SubmitRating scores the partner.
func (c *Client) SubmitRating(ctx context.Context, requestID string, score int, feedback string) (*RatingResponse, error) {
	req := map[string]any{"score": score, "feedback": feedback}
	var resp RatingResponse
	if err := c.doRequest(ctx, http.MethodPost, requestPath(requestID, "/rating"), req, &resp); err != nil {
		return nil, fmt.Errorf("submitting rating: %w", err)
	}
	return &resp, nil
}

func (c *Client) tradeCall(ctx context.Context, method, endpoint string, body any, what string) (*trade.TradeView, error) {
	var v trade.TradeView
	if err := c.doRequest(ctx, method, endpoint, body, &v); err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return &v, nil
}

func requestPath(id, suffix string) string {
	return "/marketplace/requests/" + url.PathEscape(id) + suffix
}

func interestPath(id, suffix string) string {
	return "/marketplace/interests/" + url.PathEscape(id) + suffix
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

// doRequest performs an HTTP request with JSON serialization/deserialization.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, endpoint, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, result)
}

func (c *Client) send(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: req.Method + " " + req.URL.Path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return handleErrorResponse(resp)
	}
	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// newRequest creates a new HTTP request with common headers.
func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// handleErrorResponse processes error responses from the API.
func handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Code: errResp.Code, Message: errResp.Error}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       codeForStatus(resp.StatusCode),
		Message:    strings.TrimSpace(string(body)),
	}
}

// codeForStatus guesses a code for responses that carry none, such as the
// proxy's own 502 page.
func codeForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return trade.Code(trade.ErrAuthentication)
	case http.StatusForbidden:
		return trade.Code(trade.ErrForbidden)
	case http.StatusNotFound:
		return trade.Code(trade.ErrNotFound)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return trade.Code(trade.ErrNetwork)
	}
	return fmt.Sprintf("HTTP_%d", status)
}

// APIError represents an error response from the SkillSwap API.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("skillswap API error (%d %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("skillswap API error (%d): %s", e.StatusCode, e.Code)
}

// Unwrap exposes the trade sentinel matching Code, if any.
func (e *APIError) Unwrap() error {
	return trade.FromCode(e.Code)
}

// Informational reports whether the server said the action was already done.
func (e *APIError) Informational() bool {
	return trade.IsInformational(e)
}

// NetworkError is a transport failure before any response arrived.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("skillswap %s: %v", e.Op, e.Err)
}

// Unwrap lets errors.Is match both trade.ErrNetwork and the transport cause.
func (e *NetworkError) Unwrap() []error {
	return []error{trade.ErrNetwork, e.Err}
}
