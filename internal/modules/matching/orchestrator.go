// Package matching decides which account a transaction belongs to. It layers
// declarative rules, the learned-pattern fast path, and the weighted account
// scan over the directory, and returns a suggestion without touching state.
package matching

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/aristath/ledgermap/internal/domain"
	"github.com/aristath/ledgermap/internal/modules/directory"
	"github.com/aristath/ledgermap/internal/modules/features"
	"github.com/aristath/ledgermap/internal/modules/patterns"
	"github.com/aristath/ledgermap/internal/modules/scoring"
	"github.com/aristath/ledgermap/internal/modules/scoring/scorers"
)

var errEmptyDirectory = errors.New("account directory is empty")

// Match is the outcome of a single orchestration pass. Source records which
// layer produced the suggestion so decisions stay explainable.
type Match struct {
	AccountID  string             `json:"account_id"`
	Confidence float64            `json:"confidence"`
	Source     string             `json:"source"`
	Components map[string]float64 `json:"components,omitempty"`
}

// Match sources, from most to least authoritative.
const (
	SourceRule    = "rule"
	SourcePattern = "pattern"
	SourceRegular = "regular"
	SourceSection = "section"
	SourceNone    = "none"
)

// Orchestrator runs the decision pipeline. It never mutates transactions or
// the directory; persisting a decision is the caller's job.
type Orchestrator struct {
	directory *directory.Directory
	patterns  *patterns.Store
	extractor *features.Extractor
	rules     *RuleSet
	log       zerolog.Logger
}

// NewOrchestrator wires the decision pipeline. rules may be nil when no
// declarative rules are configured.
func NewOrchestrator(
	dir *directory.Directory,
	store *patterns.Store,
	extractor *features.Extractor,
	rules *RuleSet,
	log zerolog.Logger,
) *Orchestrator {
	if rules == nil {
		rules = NewRuleSet()
	}
	return &Orchestrator{
		directory: dir,
		patterns:  store,
		extractor: extractor,
		rules:     rules,
		log:       log.With().Str("component", "matching").Logger(),
	}
}

// Rules exposes the orchestrator's rule set for registration.
func (o *Orchestrator) Rules() *RuleSet {
	return o.rules
}

// Match runs the full pipeline for one transaction:
//
//  1. declarative rules, full confidence on a hit
//  2. learned patterns, authoritative above the pattern floor
//  3. weighted scan over regular accounts
//  4. section fallback when the regular best stays under the section floor
//
// The returned confidence is the raw score of the winning layer; the caller
// compares it against the auto-map floor. Ties resolve to the lowest account
// id because candidates are scanned in id order with a strict improvement
// test.
func (o *Orchestrator) Match(tx domain.Transaction) (Match, error) {
	if o.directory.Size() == 0 {
		return Match{Source: SourceNone}, &domain.ScoringError{
			TransactionID: tx.ID,
			Err:           errEmptyDirectory,
		}
	}

	if accountID, ok := o.rules.Evaluate(tx); ok {
		o.log.Debug().
			Str("transaction", tx.ID).
			Str("account", accountID).
			Msg("Rule matched")
		return Match{AccountID: accountID, Confidence: 1.0, Source: SourceRule}, nil
	}

	f := o.extractor.Extract(tx)

	if accountID, score := o.patterns.Match(f); score > scoring.PatternConfidenceFloor {
		o.log.Debug().
			Str("transaction", tx.ID).
			Str("account", accountID).
			Float64("score", score).
			Msg("Pattern matched")
		return Match{AccountID: accountID, Confidence: clamp(score), Source: SourcePattern}, nil
	}

	best := bestOf(f, o.directory.RegularCandidates(), scorers.ScoreRegular)
	source := SourceRegular

	if best.Score < scoring.SectionFallbackFloor {
		if section := bestOf(f, o.directory.SectionCandidates(), scorers.ScoreSection); section.Score > best.Score {
			best = section
			source = SourceSection
		}
	}

	if best.AccountID == "" {
		return Match{Source: SourceNone}, nil
	}

	return Match{
		AccountID:  best.AccountID,
		Confidence: clamp(best.Score),
		Source:     source,
		Components: best.Components,
	}, nil
}

// bestOf scans candidates in id order and keeps the strictly best score, so
// equal scores fall to the earliest (lowest) account id.
func bestOf(
	f *features.FeatureSet,
	candidates []scorers.Candidate,
	score func(*features.FeatureSet, scorers.Candidate) scorers.AccountScore,
) scorers.AccountScore {
	var best scorers.AccountScore
	for _, c := range candidates {
		if s := score(f, c); s.Score > best.Score {
			best = s
		}
	}
	return best
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
