package engine

import (
	"context"
	"fmt"

	"referralstats/internal/domain"
	"referralstats/internal/rebate"
	"referralstats/internal/store"
)

func (e *Engine) onRegisterCode(ctx context.Context, tx *store.Tx, ev domain.RegisterCode, out *Outcome) error {
	_, created, err := GetOrCreateReferrer(ctx, tx, ev.Account)
	if err != nil {
		return err
	}
	if _, err = RegisterCode(tx, ev.Account, ev.Code); err != nil {
		return err
	}

	// referrer stats exist from registration on, even without trades
	totalRS, err := getOrCreateReferrerStat(ctx, tx, ev.Timestamp, domain.PeriodTotal, ev.Account, ev.Code)
	if err != nil {
		return err
	}
	dailyRS, err := getOrCreateReferrerStat(ctx, tx, ev.Timestamp, domain.PeriodDaily, ev.Account, ev.Code)
	if err != nil {
		return err
	}
	dailyRS.CopyCumulative(totalRS)
	if err = store.Put(tx, dailyRS); err != nil {
		return err
	}

	delta := registryDelta{codes: 1}
	if created {
		delta.referrers = 1
	}

	totalGS, err := storeGlobalRegistry(ctx, tx, ev.Timestamp, domain.PeriodTotal, delta, nil)
	if err != nil {
		return err
	}
	dailyGS, err := storeGlobalRegistry(ctx, tx, ev.Timestamp, domain.PeriodDaily, delta, totalGS)
	if err != nil {
		return err
	}

	e.log.Debugf("Code %s registered by %s (new referrer=%t)", ev.Code, ev.Account, created)

	out.ReferrerStats = []*domain.ReferrerStat{totalRS, dailyRS}
	out.GlobalStats = []*domain.GlobalStat{totalGS, dailyGS}
	return nil
}

// onPositionReferral books one attributed trade. Total rollups are written before daily
// ones, because daily cumulative fields are copied from the fresh total snapshot.
func (e *Engine) onPositionReferral(ctx context.Context, tx *store.Tx, ev domain.PositionReferral, out *Outcome) error {
	referrer, _, err := GetOrCreateReferrer(ctx, tx, ev.Referrer)
	if err != nil {
		return err
	}
	tier, err := e.tierFor(ctx, tx, referrer.TierID)
	if err != nil {
		return err
	}

	split, err := rebate.Compute(rebate.Input{
		Volume:                   ev.SizeDelta,
		TierTotalRebate:          tier.TotalRebate,
		TierDiscountShare:        tier.DiscountShare,
		ReferrerDiscountShareBps: referrer.DiscountShare,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIntegrity, err)
	}

	record := &domain.ReferralVolumeRecord{
		ID:              out.EventID,
		Direction:       ev.Direction,
		Volume:          ev.SizeDelta,
		Referral:        domain.NormalizeHex(ev.Account),
		ReferralCode:    domain.NormalizeHex(ev.ReferralCode),
		Referrer:        referrer.ID,
		TierID:          referrer.TierID,
		MarginFee:       split.MarginFee,
		TotalRebate:     split.TotalRebate,
		DiscountShare:   split.DiscountShare,
		FeesUsd:         split.FeesUsd,
		TotalRebateUsd:  split.TotalRebateUsd,
		DiscountUsd:     split.DiscountUsd,
		BlockNumber:     ev.BlockNumber,
		TransactionHash: domain.NormalizeHex(ev.TxHash),
		Timestamp:       ev.Timestamp,
	}
	if err = store.Put(tx, record); err != nil {
		return err
	}

	d := tradeDelta{
		referral:       ev.Account,
		referrer:       ev.Referrer,
		code:           ev.ReferralCode,
		volume:         ev.SizeDelta,
		totalRebateUsd: split.TotalRebateUsd,
		discountUsd:    split.DiscountUsd,
	}

	totalRS, err := storeReferrerStats(ctx, tx, ev.Timestamp, domain.PeriodTotal, d, nil)
	if err != nil {
		return err
	}
	dailyRS, err := storeReferrerStats(ctx, tx, ev.Timestamp, domain.PeriodDaily, d, totalRS)
	if err != nil {
		return err
	}
	refStat, err := storeReferralStats(ctx, tx, ev.Timestamp, d)
	if err != nil {
		return err
	}
	totalGS, err := storeGlobalStats(ctx, tx, ev.Timestamp, domain.PeriodTotal, d, nil)
	if err != nil {
		return err
	}
	dailyGS, err := storeGlobalStats(ctx, tx, ev.Timestamp, domain.PeriodDaily, d, totalGS)
	if err != nil {
		return err
	}

	out.VolumeRecord = record
	out.ReferrerStats = []*domain.ReferrerStat{totalRS, dailyRS}
	out.ReferralStat = refStat
	out.GlobalStats = []*domain.GlobalStat{totalGS, dailyGS}
	return nil
}
