package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"priorityforge/backend"
	"priorityforge/internal/utils"
)

const (
	// RESTPath is the PostgREST mount point under the project URL.
	RESTPath = "/rest/v1"

	// DefaultTable holds one row per task.
	DefaultTable = "tasks"

	// DefaultTimeout bounds a single HTTP request when the caller's context
	// has no deadline.
	DefaultTimeout = 30 * time.Second
)

// APIClient handles HTTP communication with the PostgREST endpoint.
type APIClient struct {
	baseURL    string
	anonKey    string
	table      string
	httpClient *http.Client
}

// NewAPIClient creates a client for the project at baseURL. Requests carry
// the anon key as "apikey" and, through the oauth2 transport, the session's
// access token as the bearer token. A nil token source sends the anon key
// as the bearer token instead.
func NewAPIClient(baseURL, anonKey, table string, ts oauth2.TokenSource) *APIClient {
	if table == "" {
		table = DefaultTable
	}
	if ts == nil {
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: anonKey, TokenType: "Bearer"})
	}
	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = DefaultTimeout
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		table:      table,
		httpClient: httpClient,
	}
}

// errorBody is the PostgREST error payload.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// doRequest performs an HTTP request against the task table
func (c *APIClient) doRequest(ctx context.Context, op, method string, query url.Values, body interface{}, prefer string) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, backend.NewBackendError(op, 0, "failed to marshal request body").WithError(err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	endpoint := c.baseURL + RESTPath + "/" + c.table
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, backend.NewBackendError(op, 0, "failed to create request").WithError(err)
	}

	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, backend.NewBackendError(op, http.StatusUnauthorized, "session refresh failed").
				WithError(utils.WrapWithSuggestion(err, "Sign in again with 'priorityforge login'"))
		}
		return nil, backend.NewBackendError(op, 0, "").WithError(transportError(err))
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, backend.NewBackendError(op, resp.StatusCode, "failed to read response").WithError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseError(op, resp.StatusCode, data)
	}
	return data, nil
}

// parseError converts a non-2xx response into a BackendError, keeping the
// PostgREST code so callers can recognize row-level security denials.
func parseError(op string, status int, data []byte) error {
	be := backend.NewBackendError(op, status, http.StatusText(status)).WithBody(string(data))

	var eb errorBody
	if err := json.Unmarshal(data, &eb); err == nil {
		if eb.Message != "" {
			be.Message = eb.Message
		}
		be.Code = eb.Code
	}
	return be
}

// transportError gives network failures a user-facing suggestion.
func transportError(err error) error {
	var netErr net.Error
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr):
		return utils.ErrBackendOffline("DNS lookup failed: no such host " + dnsErr.Name)
	case errors.As(err, &netErr) && netErr.Timeout(), errors.Is(err, context.DeadlineExceeded):
		return utils.ErrBackendOffline("timeout: " + err.Error())
	case errors.Is(err, context.Canceled):
		return err
	default:
		return utils.ErrBackendOffline(err.Error())
	}
}

func decodeRows(op string, data []byte) ([]remoteTask, error) {
	var rows []remoteTask
	if len(bytes.TrimSpace(data)) == 0 {
		return rows, nil
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, backend.NewBackendError(op, 0, fmt.Sprintf("failed to decode response: %v", err)).WithBody(string(data))
	}
	return rows, nil
}
