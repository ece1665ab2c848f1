package achievement

import (
	"fmt"
	"strings"
)

// Rarity tiers, ordered for display from legendary down to common.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Rank orders rarities; higher is rarer. Unknown values rank below common.
func (r Rarity) Rank() int {
	switch r {
	case RarityLegendary:
		return 5
	case RarityEpic:
		return 4
	case RarityRare:
		return 3
	case RarityUncommon:
		return 2
	case RarityCommon:
		return 1
	default:
		return 0
	}
}

// ParseRarity normalizes a rarity token.
func ParseRarity(raw string) (Rarity, error) {
	r := Rarity(strings.ToLower(strings.TrimSpace(raw)))
	if r.Rank() == 0 {
		return "", fmt.Errorf("unknown rarity %q", raw)
	}
	return r, nil
}

// Definition is an immutable registered achievement. ChallengeID scopes
// it to one challenge; empty means it applies to every challenge.
type Definition struct {
	ID          string
	Name        string
	Description string
	Rarity      Rarity
	Points      int
	Hidden      bool
	ChallengeID string
	Rule        Rule
}

// Builder accumulates an achievement fluently. Multiple When calls AND
// their rules together.
type Builder struct {
	def   Definition
	rules []Rule
}

func NewBuilder(id string) *Builder {
	return &Builder{def: Definition{ID: strings.TrimSpace(id), Rarity: RarityCommon}}
}

func (b *Builder) Name(name string) *Builder {
	b.def.Name = name
	return b
}

func (b *Builder) Description(desc string) *Builder {
	b.def.Description = desc
	return b
}

func (b *Builder) Rarity(r Rarity) *Builder {
	b.def.Rarity = r
	return b
}

func (b *Builder) Points(points int) *Builder {
	b.def.Points = points
	return b
}

func (b *Builder) Hidden() *Builder {
	b.def.Hidden = true
	return b
}

func (b *Builder) Challenge(challengeID string) *Builder {
	b.def.ChallengeID = strings.TrimSpace(challengeID)
	return b
}

func (b *Builder) When(r Rule) *Builder {
	b.rules = append(b.rules, r)
	return b
}

// Build materializes the definition. The description defaults to the
// composed rule's own rendering when none was supplied.
func (b *Builder) Build() (Definition, error) {
	def := b.def
	if def.ID == "" {
		return Definition{}, fmt.Errorf("achievement id is required")
	}
	if len(b.rules) == 0 {
		return Definition{}, fmt.Errorf("achievement %s has no rule", def.ID)
	}
	if def.Rarity.Rank() == 0 {
		return Definition{}, fmt.Errorf("achievement %s has invalid rarity %q", def.ID, def.Rarity)
	}
	if def.Name == "" {
		def.Name = def.ID
	}
	def.Rule = All(b.rules...)
	if def.Description == "" {
		def.Description = def.Rule.Describe()
	}
	return def, nil
}
