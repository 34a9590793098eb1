package engine

import (
	"context"

	"referralstats/internal/domain"
	"referralstats/internal/store"
)

// MarkIfNew records that referral traded under the referrer stat statID.
// It returns true only the first time a pair is seen; markers are never removed.
func MarkIfNew(ctx context.Context, tx *store.Tx, statID, referral string) (bool, error) {
	id := domain.UniqueReferralID(statID, referral)

	seen, err := store.Exists(ctx, tx, domain.CollectionUniqueReferrals, id)
	if err != nil || seen {
		return false, err
	}

	marker := &domain.UniqueReferral{
		ID:           id,
		ReferrerStat: statID,
		Referral:     domain.NormalizeHex(referral),
	}
	if err = store.Put(tx, marker); err != nil {
		return false, err
	}
	return true, nil
}
