package facilitator

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/x402-facilitator/types"
)

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	f, err := New(nil, opts...)
	require.NoError(t, err)
	return NewServer(f, nil)
}

func doJSON(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func requestBody(t *testing.T, network string) string {
	t.Helper()
	raw, err := json.Marshal(verifyRequest(network))
	require.NoError(t, err)
	return string(raw)
}

func TestVerifyEndpoint(t *testing.T) {
	s := newTestServer(t, WithBackend(types.NetworkBase, validBackend(types.NetworkBase)))

	w := doJSON(s, http.MethodPost, "/verify", requestBody(t, "base"))
	require.Equal(t, http.StatusOK, w.Code)

	var resp types.VerifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.IsValid)
	assert.Equal(t, "0xpayer", resp.Payer)
}

func TestVerifyEndpointBadJSON(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, http.MethodPost, "/verify", "{not json")
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp types.VerifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.IsValid)
	assert.Equal(t, types.ReasonInvalidPayload, resp.InvalidReason)
}

func TestVerifyEndpointUnsupportedNetwork(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, http.MethodPost, "/verify", requestBody(t, "base"))
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp types.VerifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, types.ReasonUnsupportedNetwork, resp.InvalidReason)
}

func TestSettleEndpoint(t *testing.T) {
	s := newTestServer(t, WithBackend(types.NetworkBase, validBackend(types.NetworkBase)))

	w := doJSON(s, http.MethodPost, "/settle", requestBody(t, "base"))
	require.Equal(t, http.StatusOK, w.Code)

	var resp types.SettleResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "0xdeadbeef", resp.Transaction)
}

func TestSettleEndpointFailure(t *testing.T) {
	backend := validBackend(types.NetworkBase)
	backend.settleResp = &types.SettleResponse{
		Success:     false,
		ErrorReason: types.ReasonInsufficientFunds,
		Network:     "base",
	}
	s := newTestServer(t, WithBackend(types.NetworkBase, backend))

	w := doJSON(s, http.MethodPost, "/settle", requestBody(t, "base"))
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp types.SettleResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, types.ReasonInsufficientFunds, resp.ErrorReason)
}

func TestSupportedEndpoint(t *testing.T) {
	backend := validBackend(types.NetworkBase)
	backend.signer = "0xSigner"
	s := newTestServer(t, WithBackend(types.NetworkBase, backend))

	w := doJSON(s, http.MethodGet, "/supported", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp types.SupportedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Kinds, 1)
	assert.Equal(t, "base", resp.Kinds[0].Network)
	assert.Equal(t, []string{"0xSigner"}, resp.Signers["evm"])
}

func TestDiscoveryEndpoints(t *testing.T) {
	s := newTestServer(t, WithBackend(types.NetworkBase, validBackend(types.NetworkBase)))

	req := verifyRequest("base")
	req.PaymentRequirements.Extra = map[string]interface{}{
		"discovery": map[string]interface{}{"type": "http"},
	}
	raw, err := json.Marshal(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, doJSON(s, http.MethodPost, "/verify", string(raw)).Code)

	w := doJSON(s, http.MethodGet, "/discovery/resources", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list resourceListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, defaultListLimit, list.Limit)
	assert.Zero(t, list.Offset)
	require.Len(t, list.Resources, 1)
	assert.Equal(t, "https://api.example.com/reports", list.Resources[0].Resource)

	// Out-of-range limits fall back to the default.
	w = doJSON(s, http.MethodGet, "/discovery/resources?limit=9999&offset=-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, defaultListLimit, list.Limit)
	assert.Zero(t, list.Offset)

	w = doJSON(s, http.MethodGet, "/discovery/resources/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		Resources int      `json:"resources"`
		Networks  []string `json:"networks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Resources)
	assert.Equal(t, []string{"base"}, stats.Networks)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
