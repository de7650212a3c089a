package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vetclinic/backend/internal/interfaces/http/dto"
)

// APIClient sends JSON requests to an in-process handler
type APIClient struct {
	t       *testing.T
	handler http.Handler
}

// NewAPIClient creates a client for handler
func NewAPIClient(t *testing.T, handler http.Handler) *APIClient {
	return &APIClient{t: t, handler: handler}
}

// APIResponse is a recorded response with its decoded envelope
type APIResponse struct {
	Code     int
	Envelope dto.Response
	raw      json.RawMessage
}

// Do sends method path with body encoded as JSON
func (c *APIClient) Do(method, path string, body any) *APIResponse {
	c.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)

	resp := &APIResponse{Code: w.Code}
	var envelope struct {
		dto.Response
		Data json.RawMessage `json:"data,omitempty"`
	}
	require.NoError(c.t, json.Unmarshal(w.Body.Bytes(), &envelope), "body: %s", w.Body.String())
	resp.Envelope = envelope.Response
	resp.raw = envelope.Data
	return resp
}

// DataAs decodes the data field of the response into T
func DataAs[T any](t *testing.T, resp *APIResponse) T {
	t.Helper()
	var out T
	require.NotEmpty(t, resp.raw, "response has no data")
	require.NoError(t, json.Unmarshal(resp.raw, &out))
	return out
}

// RequireStatus fails unless the response carries status
func (r *APIResponse) RequireStatus(t *testing.T, status int) *APIResponse {
	t.Helper()
	require.Equal(t, status, r.Code, "error: %+v", r.Envelope.Error)
	return r
}

// RequireError fails unless the response is an error with code
func (r *APIResponse) RequireError(t *testing.T, status int, code string) {
	t.Helper()
	require.Equal(t, status, r.Code)
	require.False(t, r.Envelope.Success)
	require.NotNil(t, r.Envelope.Error)
	require.Equal(t, code, r.Envelope.Error.Code)
}
