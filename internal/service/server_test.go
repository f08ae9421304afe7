package service

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v5"

	"github.com/alloynmt/alloy/internal/decode"
	"github.com/alloynmt/alloy/internal/decoder"
)

const testWidth = 16

func newTestModel(t *testing.T) *decode.Model {
	t.Helper()
	cfg := decoder.Config{
		NumLayers:      2,
		NumUnits:       testWidth,
		NumHeads:       2,
		FFNInnerDim:    32,
		NumDomains:     2,
		NumDomainUnits: 4,
		NumSources:     1,
	}
	m, err := decode.NewModel(cfg, 11, 42)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	return m
}

func newTestEcho(t *testing.T, rps float64) *echo.Echo {
	t.Helper()
	server := NewServer(newTestModel(t), NewDecodeStore(), nil, rps, 1)
	e := echo.New()
	server.Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestDecodeLifecycle(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, 0)
	rec := doJSON(t, e, http.MethodPost, "/v1/decode", `{"domain":0,"prompt":[1,2],"steps":4,"seed":7}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("decode status: got %d body=%s", rec.Code, rec.Body.String())
	}

	var created DecodeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected a decode id")
	}
	if len(created.Tokens) != 4 || created.TokensGenerated != 4 {
		t.Fatalf("expected 4 generated tokens, got %d (%v)", created.TokensGenerated, created.Tokens)
	}

	getRec := doJSON(t, e, http.MethodGet, "/v1/decodes/"+created.ID, "")
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status: got %d body=%s", getRec.Code, getRec.Body.String())
	}

	delRec := doJSON(t, e, http.MethodDelete, "/v1/decodes/"+created.ID, "")
	if delRec.Code != http.StatusOK {
		t.Fatalf("delete status: got %d body=%s", delRec.Code, delRec.Body.String())
	}
	if !strings.Contains(delRec.Body.String(), `"deleted":true`) {
		t.Fatalf("delete response missing deleted=true: %s", delRec.Body.String())
	}

	if rec := doJSON(t, e, http.MethodGet, "/v1/decodes/"+created.ID, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestDecodeValidation(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, 0)
	cases := []struct {
		name string
		body string
	}{
		{"empty prompt", `{"domain":0,"prompt":[]}`},
		{"bad domain", `{"domain":5,"prompt":[1]}`},
		{"too many steps", `{"domain":0,"prompt":[1],"steps":2000}`},
		{"token out of range", `{"domain":0,"prompt":[99]}`},
		{"unknown field", `{"domain":0,"prompt":[1],"bogus":true}`},
		{"malformed json", `{"domain":`},
	}
	for _, tc := range cases {
		rec := doJSON(t, e, http.MethodPost, "/v1/decode", tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d body=%s", tc.name, rec.Code, rec.Body.String())
		}
	}
}

func TestDecodeWithMemory(t *testing.T) {
	t.Parallel()

	row := make([]float32, testWidth)
	for i := range row {
		row[i] = 0.1
	}
	payload, err := json.Marshal(DecodeRequest{
		Domain: 1,
		Prompt: []int{1, 2},
		Steps:  3,
		Memory: []MemoryInput{{Values: [][]float32{row, row, row}, Length: 2}},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	e := newTestEcho(t, 0)
	rec := doJSON(t, e, http.MethodPost, "/v1/decode", string(payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("decode with memory: got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestDecodeMemoryWidthMismatch(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, 0)
	rec := doJSON(t, e, http.MethodPost, "/v1/decode", `{"domain":0,"prompt":[1],"memory":[{"values":[[1,2,3]]}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for narrow memory rows, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestScoreEndpoint(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, 0)
	rec := doJSON(t, e, http.MethodPost, "/v1/score", `{"domain":0,"tokens":[1,2,3]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("score status: got %d body=%s", rec.Code, rec.Body.String())
	}

	var resp ScoreResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode score body: %v", err)
	}
	if len(resp.Scores) != 2 {
		t.Fatalf("expected 2 scores, got %d", len(resp.Scores))
	}
	var sum float64
	for _, sc := range resp.Scores {
		sum += sc
	}
	if math.Abs(sum-resp.Total) > 1e-9 {
		t.Fatalf("total %f does not match score sum %f", resp.Total, sum)
	}
}

func TestScoreValidation(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, 0)
	if rec := doJSON(t, e, http.MethodPost, "/v1/score", `{"domain":0,"tokens":[1]}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for single token, got %d", rec.Code)
	}
	if rec := doJSON(t, e, http.MethodPost, "/v1/score", `{"domain":-1,"tokens":[1,2]}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative domain, got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, 0.001)
	first := doJSON(t, e, http.MethodPost, "/v1/score", `{"domain":0,"tokens":[1,2]}`)
	if first.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d body=%s", first.Code, first.Body.String())
	}
	second := doJSON(t, e, http.MethodPost, "/v1/score", `{"domain":0,"tokens":[1,2]}`)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the burst is spent, got %d", second.Code)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, 0)
	rec := doJSON(t, e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected health body: %s", rec.Body.String())
	}
}
