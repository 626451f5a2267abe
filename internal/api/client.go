// Package api is the HTTP client for the extraction backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/config"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

var _ service.Backend = (*Client)(nil)

// Client calls the extraction backend's JSON endpoints.
type Client struct {
	httpClient     *http.Client
	onUnauthorized func()
	baseURL        string
	retry          service.RetryOptions
	requestTimeout time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithUnauthorizedHandler registers fn to run whenever the backend answers 401.
func WithUnauthorizedHandler(fn func()) Option {
	return func(c *Client) {
		c.onUnauthorized = fn
	}
}

// WithRetryOptions overrides the backoff used for idempotent reads.
func WithRetryOptions(opts service.RetryOptions) Option {
	return func(c *Client) {
		c.retry = opts
	}
}

// NewClient creates a backend client. httpClient should come from NewHTTPClient.
func NewClient(cfg config.APIConfig, httpClient *http.Client, opts ...Option) *Client {
	c := &Client{
		httpClient:     httpClient,
		baseURL:        cfg.BaseURL,
		requestTimeout: cfg.RequestTimeout,
		retry: service.RetryOptions{
			MaxAttempts:  cfg.RetryAttempts,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetReceipt loads a receipt with its nested transactions and batch sessions.
func (c *Client) GetReceipt(ctx context.Context, receiptID string) (*model.Receipt, error) {
	var receipt model.Receipt
	err := c.getWithRetry(ctx, "/receipt/"+url.PathEscape(receiptID), &receipt)
	if err != nil {
		return nil, fmt.Errorf("failed to load receipt %s: %w", receiptID, err)
	}
	return &receipt, nil
}

// DetectTransactions runs document-type detection. A zero transaction count is not an error.
func (c *Client) DetectTransactions(ctx context.Context, receiptID string) (*model.Detection, error) {
	var detection model.Detection
	err := c.do(ctx, http.MethodPost, "/receipt/extract/"+url.PathEscape(receiptID), nil, &detection)
	if err != nil {
		return nil, fmt.Errorf("failed to detect transactions: %w", err)
	}
	return &detection, nil
}

// GetBatchSession loads one batch session.
func (c *Client) GetBatchSession(ctx context.Context, batchSessionID string) (*model.BatchSession, error) {
	var session model.BatchSession
	err := c.getWithRetry(ctx, "/transaction/sequential/session/"+url.PathEscape(batchSessionID), &session)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch session %s: %w", batchSessionID, err)
	}
	return &session, nil
}

type approveRequest struct {
	Edits            service.Edits `json:"edits"`
	TransactionIndex int           `json:"transactionIndex"`
}

// Approve creates the durable transaction for one extraction.
func (c *Client) Approve(ctx context.Context, batchSessionID string, transactionIndex int, edits service.Edits) (service.ApproveResult, error) {
	var result service.ApproveResult
	body := approveRequest{TransactionIndex: transactionIndex, Edits: edits}
	if err := c.do(ctx, http.MethodPost, sequentialPath(batchSessionID, "approve"), body, &result); err != nil {
		return service.ApproveResult{}, fmt.Errorf("failed to approve transaction %d: %w", transactionIndex, err)
	}
	return result, nil
}

type skipRequest struct {
	TransactionIndex int `json:"transactionIndex"`
}

// Skip marks one extraction as skipped.
func (c *Client) Skip(ctx context.Context, batchSessionID string, transactionIndex int) error {
	body := skipRequest{TransactionIndex: transactionIndex}
	if err := c.do(ctx, http.MethodPost, sequentialPath(batchSessionID, "skip"), body, nil); err != nil {
		return fmt.Errorf("failed to skip transaction %d: %w", transactionIndex, err)
	}
	return nil
}

// CompleteSession finalizes a batch session.
func (c *Client) CompleteSession(ctx context.Context, batchSessionID string) (*model.BatchSession, error) {
	var session model.BatchSession
	if err := c.do(ctx, http.MethodPost, sequentialPath(batchSessionID, "complete"), nil, &session); err != nil {
		return nil, fmt.Errorf("failed to finalize batch session: %w", err)
	}
	return &session, nil
}

type createClarificationRequest struct {
	BatchSessionID   string `json:"batchSessionId"`
	TransactionIndex int    `json:"transactionIndex"`
}

// CreateClarificationSession opens a clarification thread for one extraction and returns its ID.
func (c *Client) CreateClarificationSession(ctx context.Context, batchSessionID string, transactionIndex int) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	body := createClarificationRequest{BatchSessionID: batchSessionID, TransactionIndex: transactionIndex}
	if err := c.do(ctx, http.MethodPost, "/clarification/session", body, &created); err != nil {
		return "", fmt.Errorf("failed to create clarification session: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("clarification session response has no id: %w", common.ErrTransport)
	}
	return created.ID, nil
}

// GetClarificationSession loads the stored message history of a clarification thread.
func (c *Client) GetClarificationSession(ctx context.Context, sessionID string) (*model.ClarificationSession, error) {
	var session model.ClarificationSession
	if err := c.getWithRetry(ctx, "/clarification/session/"+url.PathEscape(sessionID), &session); err != nil {
		return nil, fmt.Errorf("failed to load clarification history: %w", err)
	}
	return &session, nil
}

type messageRequest struct {
	Message string `json:"message"`
}

// SendClarificationMessage submits one reviewer turn.
func (c *Client) SendClarificationMessage(ctx context.Context, sessionID, message string) (*model.TurnResponse, error) {
	var turn model.TurnResponse
	path := "/clarification/session/" + url.PathEscape(sessionID) + "/message"
	if err := c.do(ctx, http.MethodPost, path, messageRequest{Message: message}, &turn); err != nil {
		return nil, fmt.Errorf("failed to send clarification message: %w", err)
	}
	return &turn, nil
}

// ListCategories loads the category reference list.
func (c *Client) ListCategories(ctx context.Context) ([]model.Category, error) {
	var categories []model.Category
	if err := c.getWithRetry(ctx, "/category", &categories); err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	return categories, nil
}

// ListContacts loads the contact reference list.
func (c *Client) ListContacts(ctx context.Context) ([]model.Contact, error) {
	var contacts []model.Contact
	if err := c.getWithRetry(ctx, "/contact", &contacts); err != nil {
		return nil, fmt.Errorf("failed to load contacts: %w", err)
	}
	return contacts, nil
}

// ListBankAccounts loads the user's bank accounts.
func (c *Client) ListBankAccounts(ctx context.Context) ([]model.BankAccount, error) {
	var accounts []model.BankAccount
	if err := c.getWithRetry(ctx, "/bank-account", &accounts); err != nil {
		return nil, fmt.Errorf("failed to load bank accounts: %w", err)
	}
	return accounts, nil
}

func sequentialPath(batchSessionID, action string) string {
	return "/transaction/sequential/" + url.PathEscape(batchSessionID) + "/" + action
}

func (c *Client) getWithRetry(ctx context.Context, path string, out any) error {
	return common.WithRetry(ctx, func() error {
		return c.do(ctx, http.MethodGet, path, nil, out)
	}, c.retry)
}

// do sends one JSON request bounded by the configured request timeout.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, common.ErrUnauthorized) {
			return err
		}
		return common.Transport(err)
	}
	defer func() { _ = resp.Body.Close() }()

	slog.Debug("Backend request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.responseError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// ErrorMessage extracts the backend's "message" field from an error body, if any.
func ErrorMessage(body []byte) string {
	var payload struct {
		Message any `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	switch m := payload.Message.(type) {
	case string:
		return m
	case []any:
		// Validation failures arrive as a list of messages.
		if len(m) > 0 {
			if s, ok := m[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

func (c *Client) responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode == http.StatusUnauthorized && c.onUnauthorized != nil {
		c.onUnauthorized()
	}

	apiErr := &common.APIError{
		StatusCode: resp.StatusCode,
		Message:    ErrorMessage(body),
	}
	if apiErr.Message != "" {
		return apiErr
	}

	apiErr.Message = fmt.Sprintf("request failed with status %d", resp.StatusCode)
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %w", common.ErrTransport, apiErr)
	}
	return apiErr
}
