// Package verify implements the verification framework that gates
// reasoning-chain output: provenance coverage, semantic entropy,
// calibration, and an accept/abstain decision. The package is stateless;
// every function is a pure evaluation over a candidate answer and its
// citation set, so it is equally usable for ad hoc audits outside the
// orchestration engine.
package verify

import "fmt"

// Thresholds for the verification gate.
const (
	// MinProvenance is the minimum provenance coverage for a pass.
	MinProvenance = 0.85

	// AbstainEntropy is the semantic-entropy ceiling above which the
	// system abstains rather than asserting the answer.
	AbstainEntropy = 2.0

	// HighConfidence is the lower bound of the "high" confidence level.
	HighConfidence = 0.80

	// MediumConfidence is the lower bound of the "medium" confidence level.
	MediumConfidence = 0.60

	// MaxCalibrationError is the maximum tolerated gap between stated
	// confidence and provenance coverage.
	MaxCalibrationError = 0.10
)

// ConfidenceLevel classifies how much trust the verdict places in an answer.
type ConfidenceLevel string

const (
	ConfidenceHigh    ConfidenceLevel = "high"
	ConfidenceMedium  ConfidenceLevel = "medium"
	ConfidenceLow     ConfidenceLevel = "low"
	ConfidenceAbstain ConfidenceLevel = "abstain"
)

// Citation is one piece of supporting evidence attached to an answer.
type Citation struct {
	// ID references the memory record the quote was taken from.
	ID string `json:"id"`

	// Quote is the verbatim excerpt supporting the answer.
	Quote string `json:"quote"`

	// Score is the retrieval score of the cited record.
	Score float64 `json:"score"`
}

// Candidate bundles everything the framework needs to judge an answer.
// SemanticEntropy is optional: nil means no disagreement signal was
// measured, not that disagreement is zero.
type Candidate struct {
	Answer          string     `json:"answer"`
	Citations       []Citation `json:"citations"`
	Confidence      float64    `json:"confidence"`
	SemanticEntropy *float64   `json:"semantic_entropy,omitempty"`
}

// Result is the structured verdict. It is derived, never stored on its own.
type Result struct {
	Passed             bool            `json:"passed"`
	ProvenanceCoverage float64         `json:"provenance_coverage"`
	ConfidenceLevel    ConfidenceLevel `json:"confidence_level"`
	CalibrationScore   float64         `json:"calibration_score"`
	Issues             []string        `json:"issues,omitempty"`
	Recommendations    []string        `json:"recommendations,omitempty"`
}

// Verify evaluates a candidate answer against the full gate. Passed is a
// conjunction of all checks; issues and recommendations accumulate per
// failed check rather than short-circuiting, so a caller sees every
// problem at once.
func Verify(c Candidate) Result {
	coverage := ProvenanceCoverage(c.Answer, c.Citations)

	res := Result{
		ProvenanceCoverage: coverage,
		ConfidenceLevel:    classifyConfidence(c.Confidence, c.SemanticEntropy),
		CalibrationScore:   calibrationScore(c.Confidence, coverage),
	}

	provenancePassed := coverage >= MinProvenance
	if !provenancePassed {
		res.Issues = append(res.Issues,
			fmt.Sprintf("provenance coverage %.2f below minimum %.2f", coverage, MinProvenance))
		res.Recommendations = append(res.Recommendations,
			"retrieve additional supporting memories or cite longer excerpts")
	}

	if res.ConfidenceLevel == ConfidenceAbstain {
		res.Issues = append(res.Issues,
			fmt.Sprintf("semantic entropy %.2f exceeds abstain threshold %.2f", *c.SemanticEntropy, AbstainEntropy))
		res.Recommendations = append(res.Recommendations,
			"answer candidates disagree; abstain or gather more evidence before asserting")
	}

	if res.CalibrationScore > MaxCalibrationError {
		res.Issues = append(res.Issues,
			fmt.Sprintf("calibration error %.2f exceeds tolerance %.2f", res.CalibrationScore, MaxCalibrationError))
		res.Recommendations = append(res.Recommendations,
			"stated confidence is out of line with evidential support; recalibrate")
	}

	res.Passed = provenancePassed &&
		res.ConfidenceLevel != ConfidenceAbstain &&
		res.CalibrationScore <= MaxCalibrationError
	return res
}

// ShouldAbstain is the binary gate for callers that do not need the full
// structured result. Any one trigger is sufficient: confidence below the
// medium threshold, entropy above the abstain ceiling, or provenance below
// the minimum. Nil entropy/coverage means the corresponding signal was not
// measured and does not trigger.
func ShouldAbstain(confidence float64, entropy, coverage *float64) bool {
	if confidence < MediumConfidence {
		return true
	}
	if entropy != nil && *entropy > AbstainEntropy {
		return true
	}
	if coverage != nil && *coverage < MinProvenance {
		return true
	}
	return false
}

// classifyConfidence maps a confidence score to a level. An entropy above
// the abstain ceiling overrides the score entirely.
func classifyConfidence(confidence float64, entropy *float64) ConfidenceLevel {
	if entropy != nil && *entropy > AbstainEntropy {
		return ConfidenceAbstain
	}
	switch {
	case confidence >= HighConfidence:
		return ConfidenceHigh
	case confidence >= MediumConfidence:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// calibrationScore is |confidence - coverage|, an expected-calibration-error
// proxy that uses provenance coverage as a stand-in for ground-truth
// accuracy. A true calibration curve needs many trials; this core has one.
func calibrationScore(confidence, coverage float64) float64 {
	d := confidence - coverage
	if d < 0 {
		d = -d
	}
	return d
}
