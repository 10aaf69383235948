package matching

import (
	"strconv"
	"strings"
	"sync"

	"github.com/aristath/ledgermap/internal/domain"
)

// RuleField names a transaction attribute a rule condition can test.
// The set is closed: conditions are evaluated by explicit field lookup.
type RuleField string

const (
	FieldDescription  RuleField = "description"
	FieldCustomerName RuleField = "customer_name"
	FieldType         RuleField = "transaction_type"
	FieldAmount       RuleField = "amount"
)

// RuleOp is the comparison a condition applies.
type RuleOp string

const (
	OpEquals   RuleOp = "equals"
	OpContains RuleOp = "contains"
)

// Condition is a single declarative test against one transaction field.
type Condition struct {
	Field RuleField `json:"field"`
	Op    RuleOp    `json:"op"`
	Value string    `json:"value"`
}

// Rule maps transactions matching all its conditions directly to a target
// account, bypassing the scoring path with full confidence.
type Rule struct {
	Name            string      `json:"name"`
	Conditions      []Condition `json:"conditions"`
	TargetAccountID string      `json:"target_account_id"`
}

// ruleAmountTolerance absorbs float formatting noise when an amount
// condition is compared.
const ruleAmountTolerance = 0.001

// RuleSet holds mapping rules in insertion order. The first rule whose
// conditions all match wins.
type RuleSet struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewRuleSet creates an empty rule set.
func NewRuleSet() *RuleSet {
	return &RuleSet{}
}

// Add validates and appends a rule.
func (rs *RuleSet) Add(rule Rule) error {
	if rule.Name == "" {
		return &domain.ValidationError{Field: "name", Reason: "rule name is required"}
	}
	if rule.TargetAccountID == "" {
		return &domain.ValidationError{Field: "target_account_id", Reason: "rule target account is required"}
	}
	if len(rule.Conditions) == 0 {
		return &domain.ValidationError{Field: "conditions", Reason: "rule needs at least one condition"}
	}

	for _, c := range rule.Conditions {
		switch c.Field {
		case FieldDescription, FieldCustomerName, FieldType, FieldAmount:
		default:
			return &domain.ValidationError{Field: "conditions", Reason: "unknown rule field: " + string(c.Field)}
		}
		switch c.Op {
		case OpEquals:
		case OpContains:
			if c.Field == FieldAmount || c.Field == FieldType {
				return &domain.ValidationError{Field: "conditions", Reason: "contains does not apply to " + string(c.Field)}
			}
		default:
			return &domain.ValidationError{Field: "conditions", Reason: "unknown rule op: " + string(c.Op)}
		}
		if c.Field == FieldAmount {
			if _, err := strconv.ParseFloat(c.Value, 64); err != nil {
				return &domain.ValidationError{Field: "conditions", Reason: "amount condition value is not a number: " + c.Value}
			}
		}
	}

	rs.mu.Lock()
	rs.rules = append(rs.rules, rule)
	rs.mu.Unlock()
	return nil
}

// Rules returns a copy of the rule list.
func (rs *RuleSet) Rules() []Rule {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Evaluate returns the target account of the first rule fully matching the
// transaction, or ("", false) when no rule applies.
func (rs *RuleSet) Evaluate(tx domain.Transaction) (string, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	for _, rule := range rs.rules {
		if ruleMatches(rule, tx) {
			return rule.TargetAccountID, true
		}
	}
	return "", false
}

func ruleMatches(rule Rule, tx domain.Transaction) bool {
	for _, c := range rule.Conditions {
		if !conditionMatches(c, tx) {
			return false
		}
	}
	return true
}

func conditionMatches(c Condition, tx domain.Transaction) bool {
	switch c.Field {
	case FieldDescription:
		return compareText(c.Op, tx.Description, c.Value)
	case FieldCustomerName:
		return compareText(c.Op, tx.CustomerName, c.Value)
	case FieldType:
		return strings.EqualFold(string(tx.Type), c.Value)
	case FieldAmount:
		want, err := strconv.ParseFloat(c.Value, 64)
		if err != nil {
			return false
		}
		diff := tx.Amount - want
		if diff < 0 {
			diff = -diff
		}
		return diff < ruleAmountTolerance
	}
	return false
}

func compareText(op RuleOp, have, want string) bool {
	have = strings.ToLower(strings.TrimSpace(have))
	want = strings.ToLower(strings.TrimSpace(want))
	if op == OpContains {
		return want != "" && strings.Contains(have, want)
	}
	return have == want
}
