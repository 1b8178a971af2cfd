package chain

// Defaults for chain execution.
const (
	DefaultTokenBudget   = 8000
	DefaultMinConfidence = 0.70
	DefaultMinProvenance = 0.85
	DefaultMaxIterations = 3
)

// Design constants of the pipeline. These are deliberate fixed choices, not
// tunables: the condense ceiling reserves headroom for the reason step, and
// the confidence constants encode how much each node can assert about its
// own output.
const (
	// condenseBudgetRatio caps the condensed context at this fraction of the
	// remaining (not original) token budget.
	condenseBudgetRatio = 0.60

	// retrieveLimit is the memory retrieval limit per chain.
	retrieveLimit = 20

	// citationLimit and citationPreviewChars shape the support list: top
	// memories become citations, each quote truncated to a fixed preview.
	citationLimit        = 3
	citationPreviewChars = 200

	planConfidence         = 0.95
	retrieveHitConfidence  = 0.90
	retrieveMissConfidence = 0.50

	// Reason confidence blend: mean retrieval score vs. citation coverage.
	reasonScoreWeight    = 0.6
	reasonCitationWeight = 0.4

	// degradedConfidenceFactor scales a step's confidence when it runs with
	// the token budget already exhausted. Budget pressure degrades, never
	// aborts.
	degradedConfidenceFactor = 0.5
)

// Config controls one chain execution.
type Config struct {
	TokenBudget          int     `json:"token_budget"`
	MinConfidence        float64 `json:"min_confidence"`
	MinProvenance        float64 `json:"min_provenance"`
	EnableSelfCorrection bool    `json:"enable_self_correction"`
	MaxIterations        int     `json:"max_iterations"`

	// EntropySamples > 1 asks the provider for that many completions and
	// measures their semantic entropy. Zero disables sampling; entropy is
	// then absent, never fabricated.
	EntropySamples int `json:"entropy_samples,omitempty"`
}

// DefaultConfig returns the default execution config.
func DefaultConfig() Config {
	return Config{
		TokenBudget:          DefaultTokenBudget,
		MinConfidence:        DefaultMinConfidence,
		MinProvenance:        DefaultMinProvenance,
		EnableSelfCorrection: true,
		MaxIterations:        DefaultMaxIterations,
	}
}

// normalize fills zero values with defaults so a partially specified config
// behaves predictably.
func (c Config) normalize() Config {
	if c.TokenBudget <= 0 {
		c.TokenBudget = DefaultTokenBudget
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = DefaultMinConfidence
	}
	if c.MinProvenance <= 0 {
		c.MinProvenance = DefaultMinProvenance
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	return c
}
