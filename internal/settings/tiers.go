package settings

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Unbounded marks the open upper end of the last tier band.
const Unbounded = -1

type IBTier struct {
	Name           string          `json:"name"`
	MinReferrals   int             `json:"min_referrals"`
	MaxReferrals   int             `json:"max_referrals"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
}

func (t IBTier) contains(referrals int) bool {
	if referrals < t.MinReferrals {
		return false
	}
	return t.MaxReferrals == Unbounded || referrals <= t.MaxReferrals
}

// TierTable is a validated set of tier bands covering [0, n] without gaps or
// overlap. An empty table matches nothing.
type TierTable struct {
	tiers []IBTier
}

func NewTierTable(tiers []IBTier) (*TierTable, error) {
	sorted := make([]IBTier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinReferrals < sorted[j].MinReferrals
	})

	next := 0
	for i, t := range sorted {
		if strings.TrimSpace(t.Name) == "" {
			return nil, fmt.Errorf("tier #%d: name is required", i)
		}
		if t.MinReferrals != next {
			if t.MinReferrals < next {
				return nil, fmt.Errorf("tier %q: overlaps previous band at %d", t.Name, t.MinReferrals)
			}
			return nil, fmt.Errorf("tier %q: gap before %d", t.Name, t.MinReferrals)
		}
		if t.CommissionRate.IsNegative() || t.CommissionRate.GreaterThan(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("tier %q: commission rate %s outside [0,1]", t.Name, t.CommissionRate)
		}
		if t.MaxReferrals == Unbounded {
			if i != len(sorted)-1 {
				return nil, fmt.Errorf("tier %q: only the last tier may be unbounded", t.Name)
			}
			break
		}
		if t.MaxReferrals < t.MinReferrals {
			return nil, fmt.Errorf("tier %q: max %d below min %d", t.Name, t.MaxReferrals, t.MinReferrals)
		}
		next = t.MaxReferrals + 1
	}
	return &TierTable{tiers: sorted}, nil
}

// MustTierTable is NewTierTable for static tables known to be valid.
func MustTierTable(tiers []IBTier) *TierTable {
	t, err := NewTierTable(tiers)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the band containing referrals.
func (t *TierTable) Lookup(referrals int) (IBTier, bool) {
	if t == nil {
		return IBTier{}, false
	}
	for _, tier := range t.tiers {
		if tier.contains(referrals) {
			return tier, true
		}
	}
	return IBTier{}, false
}

func (t *TierTable) Tiers() []IBTier {
	if t == nil {
		return nil
	}
	out := make([]IBTier, len(t.tiers))
	copy(out, t.tiers)
	return out
}
