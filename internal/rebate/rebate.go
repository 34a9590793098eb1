package rebate

import (
	"fmt"

	"referralstats/internal/domain"
)

// MarginFeeBasisPoints is the position fee the rebate split is computed from.
const MarginFeeBasisPoints = 10

type Input struct {
	Volume                   domain.Amount
	TierTotalRebate          uint64 // bps
	TierDiscountShare        uint64 // bps
	ReferrerDiscountShareBps uint64 // bps, 0 = use the tier's
}

type Split struct {
	MarginFee      uint64 // bps
	TotalRebate    uint64 // bps
	DiscountShare  uint64 // effective bps
	FeesUsd        domain.Amount
	TotalRebateUsd domain.Amount
	DiscountUsd    domain.Amount
}

// EffectiveDiscountShare prefers a non-zero referrer override over the tier default.
func EffectiveDiscountShare(referrerShare, tierShare uint64) uint64 {
	if referrerShare > 0 {
		return referrerShare
	}
	return tierShare
}

// Compute truncates at every step:
//
//	fees     = V * 10 / 10000
//	rebate   = fees * tier.totalRebate / 10000
//	discount = rebate * effectiveDiscountShare / 10000
func Compute(in Input) (Split, error) {
	out := Split{
		MarginFee:     MarginFeeBasisPoints,
		TotalRebate:   in.TierTotalRebate,
		DiscountShare: EffectiveDiscountShare(in.ReferrerDiscountShareBps, in.TierDiscountShare),
	}

	var err error
	if out.FeesUsd, err = in.Volume.MulDivBps(out.MarginFee); err != nil {
		return Split{}, fmt.Errorf("fees of volume %s: %w", in.Volume, err)
	}
	if out.TotalRebateUsd, err = out.FeesUsd.MulDivBps(out.TotalRebate); err != nil {
		return Split{}, fmt.Errorf("rebate of fees %s: %w", out.FeesUsd, err)
	}
	if out.DiscountUsd, err = out.TotalRebateUsd.MulDivBps(out.DiscountShare); err != nil {
		return Split{}, fmt.Errorf("discount of rebate %s: %w", out.TotalRebateUsd, err)
	}
	return out, nil
}
