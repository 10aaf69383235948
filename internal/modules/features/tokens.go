package features

import (
	"hash/fnv"
	"strings"
	"unicode"

	"gonum.org/v1/gonum/floats"
)

// VectorDim is the dimensionality of description vectors. All vectors in the
// system (transaction descriptions, account names, learned patterns) share
// this space.
const VectorDim = 128

// noiseWords are dropped during tokenization. Two groups: ordinary stop words,
// and bookkeeping boilerplate that appears in almost every description or
// account name and therefore carries no discriminating signal. The account
// class words (expense, revenue, ...) are excluded here because the account
// type is scored by the dedicated type-compatibility factor.
var noiseWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {}, "to": {},
	"for": {}, "from": {}, "in": {}, "on": {}, "at": {}, "by": {}, "with": {},

	"payment": {}, "payments": {}, "pmt": {}, "paid": {}, "transfer": {},
	"txn": {}, "transaction": {}, "ref": {}, "reference": {}, "pos": {},

	"expense": {}, "expenses": {}, "revenue": {}, "revenues": {}, "income": {},
	"asset": {}, "assets": {}, "liability": {}, "liabilities": {}, "equity": {},
	"account": {}, "accounts": {}, "payable": {}, "receivable": {},
}

// Tokenize lower-cases the text, splits it on non-alphanumeric runes, and
// drops noise words. If filtering would leave nothing, the unfiltered tokens
// are returned so degenerate descriptions still produce a vector.
func Tokenize(text string) []string {
	raw := splitTokens(strings.ToLower(text))

	filtered := make([]string, 0, len(raw))
	for _, tok := range raw {
		if _, noise := noiseWords[tok]; noise {
			continue
		}
		filtered = append(filtered, tok)
	}

	if len(filtered) == 0 {
		return raw
	}
	return filtered
}

// splitTokens splits text on any rune that is not a letter or digit.
func splitTokens(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// EmbedTokens computes a deterministic dense vector for a token bag using
// feature hashing: each token is hashed onto one of VectorDim dimensions with
// a hash-derived sign, and the result is L2-normalized. Identical input
// always yields an identical vector, so matching is reproducible.
func EmbedTokens(tokens []string) []float64 {
	vec := make([]float64, VectorDim)

	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()

		idx := int(sum % VectorDim)
		sign := 1.0
		if sum&(1<<63) != 0 {
			sign = -1.0
		}
		vec[idx] += sign
	}

	norm := floats.Norm(vec, 2)
	if norm > 0 {
		floats.Scale(1/norm, vec)
	}
	return vec
}
