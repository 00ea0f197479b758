package pricing

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

// RuleKind selects the condition a rule checks before it applies.
type RuleKind string

const (
	KindSeasonal RuleKind = "seasonal"
	KindBulk     RuleKind = "bulk"
	KindTier     RuleKind = "user_specific"
)

const (
	TierGold     = "gold"
	TierStandard = "standard"
)

var hundred = decimal.NewFromInt(100)

// Rule is a percentage discount applied to the current unit price.
// Rules run in slice order and compound.
type Rule struct {
	Name        string          `json:"name"`
	Kind        RuleKind        `json:"type"`
	Percent     decimal.Decimal `json:"discount_percentage"`
	MinQuantity int             `json:"min_quantity,omitempty"`
	Tier        string          `json:"user_tier,omitempty"`
	StartsAt    *time.Time      `json:"starts_at,omitempty"`
	EndsAt      *time.Time      `json:"ends_at,omitempty"`
	Disabled    bool            `json:"disabled,omitempty"`
}

// DefaultRules is the active policy: seasonal 10%, bulk 5% above ten units, gold tier 15%.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "Seasonal Discount (10%)", Kind: KindSeasonal, Percent: decimal.NewFromInt(10)},
		{Name: "Bulk Discount (5%)", Kind: KindBulk, Percent: decimal.NewFromInt(5), MinQuantity: 10},
		{Name: "Gold Tier Discount (15%)", Kind: KindTier, Percent: decimal.NewFromInt(15), Tier: TierGold},
	}
}

// Applies reports whether the rule fires for this request at now.
func (r Rule) Applies(quantity int, pc PriceContext, now time.Time) bool {
	if r.Disabled {
		return false
	}
	switch r.Kind {
	case KindSeasonal:
		if r.StartsAt != nil && now.Before(*r.StartsAt) {
			return false
		}
		if r.EndsAt != nil && !now.Before(*r.EndsAt) {
			return false
		}
		return true
	case KindBulk:
		return quantity > r.MinQuantity
	case KindTier:
		return pc.Tier == r.Tier
	}
	return false
}

// Validate rejects rules the engine cannot apply.
func (r Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("pricing rule without name")
	}
	if !r.Percent.IsPositive() || r.Percent.GreaterThan(hundred) {
		return fmt.Errorf("pricing rule %q: discount_percentage must be in (0, 100], got %s", r.Name, r.Percent)
	}
	switch r.Kind {
	case KindSeasonal:
		if r.StartsAt != nil && r.EndsAt != nil && !r.EndsAt.After(*r.StartsAt) {
			return fmt.Errorf("pricing rule %q: ends_at must be after starts_at", r.Name)
		}
	case KindBulk:
		if r.MinQuantity < 0 {
			return fmt.Errorf("pricing rule %q: min_quantity must not be negative", r.Name)
		}
	case KindTier:
		if r.Tier == "" {
			return fmt.Errorf("pricing rule %q: user_tier is required", r.Name)
		}
	default:
		return fmt.Errorf("pricing rule %q: unknown type %q", r.Name, r.Kind)
	}
	return nil
}

// LoadRules reads an ordered JSON array of rules from path.
func LoadRules(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing rules: %w", err)
	}
	var rules []Rule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("decode pricing rules %s: %w", path, err)
	}
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	return rules, nil
}
