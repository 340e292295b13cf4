package service

import (
	"context"
	"fmt"

	"tutorwise/internal/domain"

	"github.com/shopspring/decimal"
)

// SplitPolicy is the rate set applied to one payment.
type SplitPolicy struct {
	PlatformFeeRate decimal.Decimal
	TierRates       []decimal.Decimal // tier 1 first, fractions of earner net
}

func (p SplitPolicy) Validate() error {
	one := decimal.NewFromInt(1)
	if p.PlatformFeeRate.IsNegative() || p.PlatformFeeRate.GreaterThan(one) {
		return fmt.Errorf("platform fee rate %s out of range", p.PlatformFeeRate)
	}
	total := decimal.Zero
	for i, r := range p.TierRates {
		if r.IsNegative() {
			return fmt.Errorf("tier %d rate %s is negative", i+1, r)
		}
		total = total.Add(r)
	}
	if total.GreaterThan(one) {
		return fmt.Errorf("tier rates sum to %s, above 1", total)
	}
	return nil
}

// SplitInput is everything the calculator needs, loaded up front so the
// computation itself performs no I/O.
type SplitInput struct {
	GrossCents     int64
	EarnerID       uint
	ListingOwnerID uint
	DelegateID     *uint
	Referrers      []uint // referral chain of the earner, tier 1 first
}

// SplitLine is one computed ledger line.
type SplitLine struct {
	RecipientID *uint
	Role        string
	Tier        int
	AmountCents int64
	Rate        decimal.Decimal
}

// ComputeSplit divides gross between platform, principal earner and referral tiers.
//
// Rounding: earner net is floor(gross * (1 - fee)) and the platform takes the
// rest of gross, including any fractional unit. Each tier gets floor(net * rate)
// and the earner keeps net minus all tier shares. The lines always sum to gross.
func ComputeSplit(in SplitInput, p SplitPolicy) ([]SplitLine, error) {
	if in.GrossCents <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	one := decimal.NewFromInt(1)
	gross := decimal.NewFromInt(in.GrossCents)
	net := gross.Mul(one.Sub(p.PlatformFeeRate)).Floor().IntPart()
	platform := in.GrossCents - net

	lines := []SplitLine{{
		Role:        domain.RolePlatform,
		AmountCents: platform,
		Rate:        p.PlatformFeeRate,
	}}

	netDec := decimal.NewFromInt(net)
	var tiers []SplitLine
	var referralTotal int64
	for i, referrer := range in.Referrers {
		if i >= len(p.TierRates) {
			break
		}
		rate := p.TierRates[i]
		share := netDec.Mul(rate).Floor().IntPart()
		if share <= 0 {
			continue
		}
		tier := i + 1
		recipient := referrer
		line := SplitLine{RecipientID: &recipient, Role: domain.ReferrerTierRole(tier), Tier: tier, AmountCents: share, Rate: rate}
		if tier == 1 {
			if eff, delegated := EffectiveReferralRecipient(&recipient, in.ListingOwnerID, in.DelegateID); delegated {
				line.RecipientID = eff
				line.Role = domain.RoleDelegate
			}
		}
		tiers = append(tiers, line)
		referralTotal += share
	}

	earner := in.EarnerID
	lines = append(lines, SplitLine{
		RecipientID: &earner,
		Role:        domain.RolePrincipalEarner,
		AmountCents: net - referralTotal,
		Rate:        one.Sub(p.PlatformFeeRate),
	})
	lines = append(lines, tiers...)
	return lines, nil
}

// ChainWalk is the result of walking a referral chain upward.
type ChainWalk struct {
	Referrers []uint // tier 1 first
	Cycle     []uint // non-empty when the chain loops back, e.g. [B A B]
}

// ReferrerFunc returns the direct referrer of an actor, or nil.
type ReferrerFunc func(ctx context.Context, actorID uint) (*uint, error)

// WalkReferrerChain follows referred_by links from the earner for at most
// maxDepth steps. It stops at an organic actor, at maxDepth, or at the first
// actor already visited, which is reported as a cycle.
func WalkReferrerChain(ctx context.Context, earnerID uint, maxDepth int, next ReferrerFunc) (ChainWalk, error) {
	var w ChainWalk
	path := []uint{earnerID}
	pos := map[uint]int{earnerID: 0}
	cur := earnerID
	for len(w.Referrers) < maxDepth {
		ref, err := next(ctx, cur)
		if err != nil {
			return w, err
		}
		if ref == nil {
			break
		}
		if i, seen := pos[*ref]; seen {
			w.Cycle = append(append([]uint{}, path[i:]...), *ref)
			break
		}
		pos[*ref] = len(path)
		path = append(path, *ref)
		w.Referrers = append(w.Referrers, *ref)
		cur = *ref
	}
	return w, nil
}
