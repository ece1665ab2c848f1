package achievement

import (
	"embed"
	"fmt"
	"io/fs"

	yaml "gopkg.in/yaml.v3"

	"github.com/park285/challenge-runtime/internal/game"
)

//go:embed achievements.yaml
var defaultFiles embed.FS

// ruleSpec is the declarative rule schema used by the YAML catalog. Leaf
// conditions in one spec are ANDed together; all/any/not compose nested
// specs.
type ruleSpec struct {
	All []ruleSpec `yaml:"all,omitempty"`
	Any []ruleSpec `yaml:"any,omitempty"`
	Not *ruleSpec  `yaml:"not,omitempty"`

	Won           *bool  `yaml:"won,omitempty"`
	Outcome       string `yaml:"outcome,omitempty"`
	Resigned      *bool  `yaml:"resigned,omitempty"`
	NoErrors      *bool  `yaml:"no_errors,omitempty"`
	MaxMoves      *int   `yaml:"max_moves,omitempty"`
	MinMoves      *int   `yaml:"min_moves,omitempty"`
	MaxDurationMS *int64 `yaml:"max_duration_ms,omitempty"`
}

type catalogEntry struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Rarity      string   `yaml:"rarity"`
	Points      int      `yaml:"points"`
	Hidden      bool     `yaml:"hidden,omitempty"`
	Challenge   string   `yaml:"challenge,omitempty"`
	Rule        ruleSpec `yaml:"rule"`
}

type catalogFile struct {
	Achievements []catalogEntry `yaml:"achievements"`
}

func compileRule(spec ruleSpec) (Rule, error) {
	var rules []Rule

	if spec.Won != nil {
		want := *spec.Won
		desc := "win the game"
		if !want {
			desc = "do not win the game"
		}
		rules = append(rules, Predicate(desc, func(ctx Context) (bool, error) {
			return ctx.Stats.Won == want, nil
		}))
	}
	if spec.Outcome != "" {
		outcome := game.Status(spec.Outcome)
		rules = append(rules, Predicate(fmt.Sprintf("finish with outcome %s", outcome), func(ctx Context) (bool, error) {
			return ctx.Stats.Outcome == outcome, nil
		}))
	}
	if spec.Resigned != nil {
		want := *spec.Resigned
		desc := "resign the game"
		if !want {
			desc = "finish without resigning"
		}
		rules = append(rules, Predicate(desc, func(ctx Context) (bool, error) {
			return ctx.Stats.Resigned == want, nil
		}))
	}
	if spec.NoErrors != nil && *spec.NoErrors {
		rules = append(rules, Predicate("finish without error events", func(ctx Context) (bool, error) {
			return ctx.Stats.ErrorEvents == 0, nil
		}))
	}
	if spec.MaxMoves != nil {
		limit := *spec.MaxMoves
		rules = append(rules, Predicate(fmt.Sprintf("use at most %d moves", limit), func(ctx Context) (bool, error) {
			return ctx.Stats.PlayerMoves <= limit, nil
		}))
	}
	if spec.MinMoves != nil {
		limit := *spec.MinMoves
		rules = append(rules, Predicate(fmt.Sprintf("use at least %d moves", limit), func(ctx Context) (bool, error) {
			return ctx.Stats.PlayerMoves >= limit, nil
		}))
	}
	if spec.MaxDurationMS != nil {
		limit := *spec.MaxDurationMS
		rules = append(rules, Predicate(fmt.Sprintf("finish within %dms", limit), func(ctx Context) (bool, error) {
			return ctx.Stats.DurationMS <= limit, nil
		}))
	}

	if len(spec.All) > 0 {
		subs := make([]Rule, 0, len(spec.All))
		for _, s := range spec.All {
			sub, err := compileRule(s)
			if err != nil {
				return Rule{}, err
			}
			subs = append(subs, sub)
		}
		rules = append(rules, All(subs...))
	}
	if len(spec.Any) > 0 {
		subs := make([]Rule, 0, len(spec.Any))
		for _, s := range spec.Any {
			sub, err := compileRule(s)
			if err != nil {
				return Rule{}, err
			}
			subs = append(subs, sub)
		}
		rules = append(rules, Any(subs...))
	}
	if spec.Not != nil {
		sub, err := compileRule(*spec.Not)
		if err != nil {
			return Rule{}, err
		}
		rules = append(rules, Not(sub))
	}

	if len(rules) == 0 {
		return Rule{}, fmt.Errorf("rule spec has no conditions")
	}
	return All(rules...), nil
}

// LoadCatalog parses a YAML achievement catalog into definitions.
func LoadCatalog(raw []byte) ([]Definition, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse achievement catalog: %w", err)
	}
	defs := make([]Definition, 0, len(file.Achievements))
	for _, entry := range file.Achievements {
		rarity, err := ParseRarity(entry.Rarity)
		if err != nil {
			return nil, fmt.Errorf("achievement %s: %w", entry.ID, err)
		}
		rule, err := compileRule(entry.Rule)
		if err != nil {
			return nil, fmt.Errorf("achievement %s: %w", entry.ID, err)
		}
		b := NewBuilder(entry.ID).
			Name(entry.Name).
			Rarity(rarity).
			Points(entry.Points).
			Challenge(entry.Challenge).
			When(rule)
		if entry.Description != "" {
			b.Description(entry.Description)
		}
		if entry.Hidden {
			b.Hidden()
		}
		def, err := b.Build()
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// DefaultCatalog loads the embedded achievement catalog.
func DefaultCatalog() ([]Definition, error) {
	raw, err := fs.ReadFile(defaultFiles, "achievements.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded achievements: %w", err)
	}
	return LoadCatalog(raw)
}
