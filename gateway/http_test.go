package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*HTTPHandler, *testEnv) {
	t.Helper()
	e := newTestEnv(t, nil)
	return NewHTTPHandler(e.service, "admin-secret", "test"), e
}

func doRequest(h *HTTPHandler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.RegisterHTTPHandlers(mux)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func TestHandleChat_Success(t *testing.T) {
	h, e := newTestHandler(t)
	token := scratchToken(t, e)

	body := `{"message":"How do I move a sprite?","scope_token":"` + token + `"}`
	rr := doRequest(h, http.MethodPost, "/api/chat", body, map[string]string{
		"X-Actor-ID":   "student-1",
		"X-Actor-Type": "student",
	})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Text)
	assert.True(t, resp.ScopeVerified)
	assert.NotEmpty(t, resp.RequestID)
}

func TestHandleChat_MissingScopeToken(t *testing.T) {
	h, _ := newTestHandler(t)

	rr := doRequest(h, http.MethodPost, "/api/chat", `{"message":"hello"}`, map[string]string{
		"X-Actor-ID":   "student-1",
		"X-Actor-Type": "student",
	})

	require.Equal(t, http.StatusUnauthorized, rr.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "missing_scope_token", resp.Error)
	assert.NotEmpty(t, resp.RequestID)
}

func TestHandleChat_InvalidJSON(t *testing.T) {
	h, _ := newTestHandler(t)

	rr := doRequest(h, http.MethodPost, "/api/chat", "{not json", map[string]string{
		"X-Actor-ID": "student-1",
	})

	require.Equal(t, http.StatusBadRequest, rr.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "bad_request_body", resp.Error)
}

func TestHandleChat_MethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler(t)

	rr := doRequest(h, http.MethodGet, "/api/chat", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, http.MethodPost, rr.Header().Get("Allow"))
}

func TestHandleChat_UnknownActorTypeDefaultsToStudent(t *testing.T) {
	h, _ := newTestHandler(t)

	// Unrecognized actor type gets the student fail-closed policy.
	rr := doRequest(h, http.MethodPost, "/api/chat", `{"message":"hello"}`, map[string]string{
		"X-Actor-ID":   "someone",
		"X-Actor-Type": "superuser",
	})

	require.Equal(t, http.StatusUnauthorized, rr.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "missing_scope_token", resp.Error)
}

func TestHandleResetClass_RequiresBearer(t *testing.T) {
	h, _ := newTestHandler(t)

	rr := doRequest(h, http.MethodPost, "/api/admin/reset-class", `{"class_id":55}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doRequest(h, http.MethodPost, "/api/admin/reset-class", `{"class_id":55}`, map[string]string{
		"Authorization": "Bearer wrong-secret",
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandleResetClass_Success(t *testing.T) {
	h, _ := newTestHandler(t)

	rr := doRequest(h, http.MethodPost, "/api/admin/reset-class", `{"class_id":55}`, map[string]string{
		"Authorization": "Bearer admin-secret",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp ResetClassResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, 55, resp.ClassID)
}

func TestHandleResetClass_DisabledWithoutToken(t *testing.T) {
	e := newTestEnv(t, nil)
	h := NewHTTPHandler(e.service, "", "test")

	// No admin token configured: even an empty bearer must be rejected.
	rr := doRequest(h, http.MethodPost, "/api/admin/reset-class", `{"class_id":55}`, map[string]string{
		"Authorization": "Bearer ",
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandleHealthz(t *testing.T) {
	h, _ := newTestHandler(t)

	rr := doRequest(h, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Status   string   `json:"status"`
		Version  string   `json:"version"`
		Backends []string `json:"backends"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.Equal(t, []string{"fake"}, resp.Backends)
}
