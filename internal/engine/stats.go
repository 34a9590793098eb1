package engine

import (
	"context"

	"referralstats/internal/domain"
	"referralstats/internal/store"
)

// tradeDelta is what one position-referral event adds to every rollup it touches.
type tradeDelta struct {
	referral       string
	referrer       string
	code           string
	volume         domain.Amount
	totalRebateUsd domain.Amount
	discountUsd    domain.Amount
}

// registryDelta is what one code registration adds to the global counters.
type registryDelta struct {
	codes     uint64
	referrers uint64
}

func getOrCreateReferrerStat(ctx context.Context, tx *store.Tx, ts uint64, p domain.Period, referrer, code string) (*domain.ReferrerStat, error) {
	bucket := domain.Bucket(ts, p)
	id := domain.ReferrerStatID(p, bucket, code, referrer)

	stat, _, err := store.UpsertDefault[domain.ReferrerStat](ctx, tx, id, func() *domain.ReferrerStat {
		return &domain.ReferrerStat{
			ID:           id,
			Period:       p,
			Timestamp:    bucket,
			Referrer:     domain.NormalizeHex(referrer),
			ReferralCode: domain.NormalizeHex(code),
		}
	})
	return stat, err
}

// getOrCreateGlobalStat seeds the cumulative fields of a new bucket from total when given.
func getOrCreateGlobalStat(ctx context.Context, tx *store.Tx, ts uint64, p domain.Period, total *domain.GlobalStat) (*domain.GlobalStat, error) {
	bucket := domain.Bucket(ts, p)
	id := domain.GlobalStatID(p, bucket)

	stat, _, err := store.UpsertDefault[domain.GlobalStat](ctx, tx, id, func() *domain.GlobalStat {
		s := &domain.GlobalStat{ID: id, Period: p, Timestamp: bucket}
		if total != nil {
			s.CopyCumulative(total)
		}
		return s
	})
	return stat, err
}

func getOrCreateReferralStat(ctx context.Context, tx *store.Tx, ts uint64, referral string) (*domain.ReferralStat, error) {
	bucket := domain.Bucket(ts, domain.PeriodTotal)
	id := domain.ReferralStatID(bucket, referral)

	stat, _, err := store.UpsertDefault[domain.ReferralStat](ctx, tx, id, func() *domain.ReferralStat {
		return &domain.ReferralStat{
			ID:        id,
			Period:    domain.PeriodTotal,
			Timestamp: bucket,
			Referral:  domain.NormalizeHex(referral),
		}
	})
	return stat, err
}

// storeReferrerStats applies d to the referrer stat of period p. A daily stat takes its
// cumulative fields from total, which must already include this event.
func storeReferrerStats(ctx context.Context, tx *store.Tx, ts uint64, p domain.Period, d tradeDelta, total *domain.ReferrerStat) (*domain.ReferrerStat, error) {
	stat, err := getOrCreateReferrerStat(ctx, tx, ts, p, d.referrer, d.code)
	if err != nil {
		return nil, err
	}

	// must run before the counters change
	isNew, err := MarkIfNew(ctx, tx, stat.ID, d.referral)
	if err != nil {
		return nil, err
	}
	if isNew {
		stat.TradedReferralsCount++
	}

	var a adder
	a.add(&stat.Volume, d.volume)
	a.add(&stat.TotalRebateUsd, d.totalRebateUsd)
	a.add(&stat.DiscountUsd, d.discountUsd)
	if a.err != nil {
		return nil, a.err
	}
	stat.Trades++

	if total == nil {
		stat.MirrorCumulative()
	} else {
		stat.CopyCumulative(total)
	}

	if err = store.Put(tx, stat); err != nil {
		return nil, err
	}
	return stat, nil
}

func storeReferralStats(ctx context.Context, tx *store.Tx, ts uint64, d tradeDelta) (*domain.ReferralStat, error) {
	stat, err := getOrCreateReferralStat(ctx, tx, ts, d.referral)
	if err != nil {
		return nil, err
	}

	var a adder
	a.add(&stat.Volume, d.volume)
	a.add(&stat.DiscountUsd, d.discountUsd)
	if a.err != nil {
		return nil, a.err
	}
	stat.VolumeCumulative = stat.Volume
	stat.DiscountUsdCumulative = stat.DiscountUsd

	if err = store.Put(tx, stat); err != nil {
		return nil, err
	}
	return stat, nil
}

func storeGlobalStats(ctx context.Context, tx *store.Tx, ts uint64, p domain.Period, d tradeDelta, total *domain.GlobalStat) (*domain.GlobalStat, error) {
	stat, err := getOrCreateGlobalStat(ctx, tx, ts, p, total)
	if err != nil {
		return nil, err
	}

	var a adder
	a.add(&stat.Volume, d.volume)
	a.add(&stat.TotalRebateUsd, d.totalRebateUsd)
	a.add(&stat.DiscountUsd, d.discountUsd)
	if a.err != nil {
		return nil, a.err
	}
	stat.Trades++

	return putGlobal(tx, stat, total)
}

// storeGlobalRegistry applies a registration delta to the global stat of period p.
func storeGlobalRegistry(ctx context.Context, tx *store.Tx, ts uint64, p domain.Period, d registryDelta, total *domain.GlobalStat) (*domain.GlobalStat, error) {
	stat, err := getOrCreateGlobalStat(ctx, tx, ts, p, total)
	if err != nil {
		return nil, err
	}

	stat.ReferralCodesCount += d.codes
	stat.ReferrersCount += d.referrers

	return putGlobal(tx, stat, total)
}

func putGlobal(tx *store.Tx, stat, total *domain.GlobalStat) (*domain.GlobalStat, error) {
	if total == nil {
		stat.MirrorCumulative()
	} else {
		stat.CopyCumulative(total)
	}

	if err := store.Put(tx, stat); err != nil {
		return nil, err
	}
	return stat, nil
}
