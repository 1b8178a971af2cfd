package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/mindloom/mindloom/pkg/api/response"
	"github.com/mindloom/mindloom/pkg/verify"
)

// VerifyHandler handles standalone verification requests.
type VerifyHandler struct {
	metrics VerifyMetricsRecorder
}

// VerifyMetricsRecorder records verification check results.
type VerifyMetricsRecorder interface {
	RecordVerification(passed bool, coverage float64)
}

type nopVerifyMetrics struct{}

func (nopVerifyMetrics) RecordVerification(bool, float64) {}

// NewVerifyHandler creates a new verify handler.
func NewVerifyHandler(metrics VerifyMetricsRecorder) *VerifyHandler {
	if metrics == nil {
		metrics = nopVerifyMetrics{}
	}
	return &VerifyHandler{metrics: metrics}
}

type verifyRequest struct {
	Answer          string             `json:"answer"`
	Citations       []verify.Citation  `json:"citations,omitempty"`
	Confidence      float64            `json:"confidence"`
	Completions     []string           `json:"completions,omitempty"`
	SemanticEntropy *float64           `json:"semantic_entropy,omitempty"`
}

// Verify handles POST /api/v1/verify
func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}
	if req.Answer == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "Answer is required", getRequestID(ctx))
		return
	}
	if req.Confidence < 0 || req.Confidence > 1 {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "Confidence must be in [0, 1]", getRequestID(ctx))
		return
	}

	entropy := req.SemanticEntropy
	if entropy == nil && len(req.Completions) > 1 {
		e := verify.SemanticEntropy(req.Completions)
		entropy = &e
	}

	result := verify.Verify(verify.Candidate{
		Answer:          req.Answer,
		Citations:       req.Citations,
		Confidence:      req.Confidence,
		SemanticEntropy: entropy,
	})
	h.metrics.RecordVerification(result.Passed, result.ProvenanceCoverage)

	response.JSON(w, http.StatusOK, result)
}
