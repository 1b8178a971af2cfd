package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mindloom/mindloom/pkg/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureVerifyMetrics struct {
	calls    int
	passed   bool
	coverage float64
}

func (c *captureVerifyMetrics) RecordVerification(passed bool, coverage float64) {
	c.calls++
	c.passed = passed
	c.coverage = coverage
}

func doVerify(t *testing.T, h *VerifyHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Verify(rec, httptest.NewRequest(http.MethodPost, "/api/v1/verify", strings.NewReader(body)))
	return rec
}

func TestVerify_Passes(t *testing.T) {
	metrics := &captureVerifyMetrics{}
	h := NewVerifyHandler(metrics)

	body := `{
		"answer": "Batch writes cut commit overhead.",
		"citations": [{"id": "m1", "quote": "Batch writes cut commit overhead dramatically and keep the write path predictable.", "score": 0.9}],
		"confidence": 0.95
	}`
	rec := doVerify(t, h, body)
	require.Equal(t, http.StatusOK, rec.Code)

	var result verify.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.True(t, result.Passed)
	assert.GreaterOrEqual(t, result.ProvenanceCoverage, 0.85)
	assert.Equal(t, 1, metrics.calls)
	assert.True(t, metrics.passed)
}

func TestVerify_FailsWithoutCitations(t *testing.T) {
	h := NewVerifyHandler(nil)

	rec := doVerify(t, h, `{"answer":"An unsupported claim.","confidence":0.9}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result verify.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.False(t, result.Passed)
	assert.Zero(t, result.ProvenanceCoverage)
	assert.NotEmpty(t, result.Issues)
}

func TestVerify_ComputesEntropyFromCompletions(t *testing.T) {
	h := NewVerifyHandler(nil)

	// Two disagreeing completions carry measurable entropy.
	body := `{
		"answer": "Answer A.",
		"confidence": 0.9,
		"completions": ["Answer A.", "Answer B."]
	}`
	rec := doVerify(t, h, body)
	require.Equal(t, http.StatusOK, rec.Code)

	var result verify.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.False(t, result.Passed)
}

func TestVerify_Validation(t *testing.T) {
	h := NewVerifyHandler(nil)

	assert.Equal(t, http.StatusBadRequest, doVerify(t, h, `{"confidence":0.9}`).Code)
	assert.Equal(t, http.StatusBadRequest, doVerify(t, h, `{"answer":"x","confidence":1.2}`).Code)
	assert.Equal(t, http.StatusBadRequest, doVerify(t, h, `{broken`).Code)
}
