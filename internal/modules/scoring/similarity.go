// Package scoring holds the shared numeric primitives and weight constants
// for transaction-to-account matching.
package scoring

import "gonum.org/v1/gonum/floats"

// CosineSimilarity returns the cosine similarity of two vectors, clamped to
// [0,1]. Raw cosine can be negative for degenerate embeddings; negative
// values carry no meaning in this domain and are treated as 0. Returns 0
// when either vector has zero norm or the lengths differ.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 {
		return 0
	}

	cos := floats.Dot(a, b) / (normA * normB)
	if cos < 0 {
		return 0
	}
	if cos > 1 {
		// Floating point can push the ratio a hair over 1
		return 1
	}
	return cos
}

// Weights for the pattern fast path.
const (
	PatternWeightDescription = 0.4
	PatternWeightAmount      = 0.3
	PatternWeightType        = 0.2
	PatternWeightCustomer    = 0.1
)

// Weights for the regular-account scan.
const (
	RegularWeightDescription = 0.4
	RegularWeightType        = 0.3
	RegularWeightEntity      = 0.2
	RegularWeightHistory     = 0.1
)

// Weights for the section-account fallback scan.
const (
	SectionWeightDescription = 0.5
	SectionWeightType        = 0.5
)

// Decision thresholds.
const (
	// PatternConfidenceFloor - a pattern match above this is authoritative
	// and the full account scan is skipped.
	PatternConfidenceFloor = 0.8
	// SectionFallbackFloor - when the best regular account scores below
	// this, section accounts are scanned as a fallback.
	SectionFallbackFloor = 0.5
	// AutoMapFloor - above this confidence a transaction may be
	// auto-transitioned to MAPPED without manual review.
	AutoMapFloor = 0.7
)

// AmountProximity scores how close two amounts are: 1.0 on exact equality,
// decaying as 1/(1+|delta|) otherwise.
func AmountProximity(a, b float64) float64 {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	if diff == 0 {
		return 1.0
	}
	return 1.0 / (1.0 + diff)
}
