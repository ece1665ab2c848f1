package achievement

import (
	"fmt"
	"strings"

	"github.com/park285/challenge-runtime/internal/game"
	"github.com/park285/challenge-runtime/internal/replay"
)

// Context is what rules see: the final result, the full replay and the
// stats derived from it. Stats are computed once per evaluation run.
type Context struct {
	Result *game.Result
	Replay *replay.GameReplay
	Stats  replay.Stats
}

type ruleKind int

const (
	kindPredicate ruleKind = iota
	kindAll
	kindAny
	kindNot
)

// Rule is an immutable predicate over a finished game. A rule is either
// a named primitive predicate or a composite (All/Any/Not) over other
// rules; Evaluate walks that tree. Composition never mutates operands.
type Rule struct {
	kind ruleKind
	desc string
	pred func(Context) (bool, error)
	subs []Rule
}

// Predicate wraps a primitive check with its human-readable description.
func Predicate(desc string, fn func(Context) (bool, error)) Rule {
	return Rule{kind: kindPredicate, desc: desc, pred: fn}
}

// All is the AND of the given rules. With no operands it is trivially true.
func All(rules ...Rule) Rule {
	if len(rules) == 1 {
		return rules[0]
	}
	return Rule{kind: kindAll, subs: append([]Rule(nil), rules...)}
}

// Any is the OR of the given rules. With no operands it is trivially false.
func Any(rules ...Rule) Rule {
	if len(rules) == 1 {
		return rules[0]
	}
	return Rule{kind: kindAny, subs: append([]Rule(nil), rules...)}
}

// Not negates a rule.
func Not(r Rule) Rule {
	return Rule{kind: kindNot, subs: []Rule{r}}
}

// Evaluate interprets the rule tree against the context.
func (r Rule) Evaluate(ctx Context) (bool, error) {
	switch r.kind {
	case kindPredicate:
		if r.pred == nil {
			return false, fmt.Errorf("rule %q has no predicate", r.desc)
		}
		return r.pred(ctx)
	case kindAll:
		for _, sub := range r.subs {
			ok, err := sub.Evaluate(ctx)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case kindAny:
		for _, sub := range r.subs {
			ok, err := sub.Evaluate(ctx)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case kindNot:
		if len(r.subs) != 1 {
			return false, fmt.Errorf("not rule needs exactly one operand")
		}
		ok, err := r.subs[0].Evaluate(ctx)
		if err != nil {
			return false, err
		}
		return !ok, nil
	default:
		return false, fmt.Errorf("unknown rule kind %d", r.kind)
	}
}

// Describe renders the composed rule for display and as the default
// achievement description.
func (r Rule) Describe() string {
	switch r.kind {
	case kindPredicate:
		return r.desc
	case kindAll:
		return "(" + joinDescriptions(r.subs, " and ") + ")"
	case kindAny:
		return "(" + joinDescriptions(r.subs, " or ") + ")"
	case kindNot:
		if len(r.subs) == 1 {
			return "not " + r.subs[0].Describe()
		}
		return "not ?"
	default:
		return "?"
	}
}

func joinDescriptions(rules []Rule, sep string) string {
	parts := make([]string, len(rules))
	for i, r := range rules {
		parts[i] = r.Describe()
	}
	return strings.Join(parts, sep)
}
