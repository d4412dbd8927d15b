// Package clients is a typed HTTP client for the library API.
package clients

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"campuslibrary/internal/catalog"
	"campuslibrary/internal/circulation"
	"campuslibrary/internal/history"
	"campuslibrary/internal/httpx"
	"campuslibrary/internal/membership"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// APIError is returned for every non-2xx response.
type APIError struct {
	Status int
	httpx.ErrorResponse
}

func (e *APIError) Error() string {
	if e.ErrorCode == "" {
		return fmt.Sprintf("library api: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("library api: status %d: %s: %s", e.Status, e.ErrorCode, e.Message)
}

// Code returns the error_code of err when it is an *APIError.
func Code(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode
	}
	return ""
}

// Client talks to one library API endpoint. A Client is safe for concurrent
// use; WithToken returns a copy bound to a session.
type Client struct {
	baseURL string
	apiKey  string
	token   string
	http    *http.Client
}

type Option func(*Client)

func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// WithToken returns a client that authenticates with the given session token.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = token
	return &clone
}

func (c *Client) SignUp(ctx context.Context, email, password string) (*membership.User, error) {
	var user membership.User
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/signup", body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) SignIn(ctx context.Context, params membership.SignInParams) (*membership.Session, error) {
	var session membership.Session
	if err := c.do(ctx, http.MethodPost, "/auth/signin", params, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/signout", nil, nil)
}

// Me returns the principal behind the client's token.
func (c *Client) Me(ctx context.Context) (*membership.Principal, error) {
	var principal membership.Principal
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &principal); err != nil {
		return nil, err
	}
	return &principal, nil
}

func (c *Client) Search(ctx context.Context, term string) ([]catalog.Book, error) {
	path := "/books"
	if term != "" {
		path += "?" + url.Values{"q": {term}}.Encode()
	}
	var books []catalog.Book
	if err := c.do(ctx, http.MethodGet, path, nil, &books); err != nil {
		return nil, err
	}
	return books, nil
}

func (c *Client) GetBook(ctx context.Context, id uuid.UUID) (*catalog.Book, error) {
	var book catalog.Book
	if err := c.do(ctx, http.MethodGet, "/books/"+id.String(), nil, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *Client) Borrow(ctx context.Context, bookID uuid.UUID, pickup circulation.Date) (*circulation.Receipt, error) {
	var receipt circulation.Receipt
	body := map[string]string{"pickup_date": pickup.String()}
	if err := c.do(ctx, http.MethodPost, "/books/"+bookID.String()+"/borrow", body, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *Client) MyBorrowings(ctx context.Context, limit int) ([]circulation.Borrowing, error) {
	path := "/me/borrowings"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var borrowings []circulation.Borrowing
	if err := c.do(ctx, http.MethodGet, path, nil, &borrowings); err != nil {
		return nil, err
	}
	return borrowings, nil
}

func (c *Client) Dashboard(ctx context.Context) (*circulation.Dashboard, error) {
	var dashboard circulation.Dashboard
	if err := c.do(ctx, http.MethodGet, "/me/dashboard", nil, &dashboard); err != nil {
		return nil, err
	}
	return &dashboard, nil
}

func (c *Client) AddBook(ctx context.Context, input catalog.BookInput) (*catalog.Book, error) {
	var book catalog.Book
	if err := c.do(ctx, http.MethodPost, "/admin/books", input, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *Client) UpdateBook(ctx context.Context, id uuid.UUID, input catalog.BookInput) (*catalog.Book, error) {
	var book catalog.Book
	if err := c.do(ctx, http.MethodPut, "/admin/books/"+id.String(), input, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *Client) RemoveBook(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/admin/books/"+id.String(), nil, nil)
}

func (c *Client) BookHistory(ctx context.Context, id uuid.UUID) ([]history.Event, error) {
	var events []history.Event
	if err := c.do(ctx, http.MethodGet, "/admin/books/"+id.String()+"/history", nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) ListRecords(ctx context.Context) ([]circulation.EnrichedRecord, error) {
	var records []circulation.EnrichedRecord
	if err := c.do(ctx, http.MethodGet, "/admin/borrowings", nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) DeleteRecord(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/admin/borrowings/"+id.String(), nil, nil)
}

func (c *Client) Consistency(ctx context.Context) (*circulation.ConsistencyReport, error) {
	var report circulation.ConsistencyReport
	if err := c.do(ctx, http.MethodGet, "/admin/consistency", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *Client) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/admin/users/"+id.String(), nil, nil)
}

// Health calls /healthz and reports any non-2xx status as an error.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(httpx.APIKeyHeader, c.apiKey)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if err := json.Unmarshal(raw, &apiErr.ErrorResponse); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
