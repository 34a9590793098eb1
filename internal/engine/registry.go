package engine

import (
	"context"
	"errors"
	"fmt"

	"referralstats/internal/domain"
	"referralstats/internal/store"
)

// GetOrCreateReferrer loads the referrer or registers it with tier 0 and no discount override.
func GetOrCreateReferrer(ctx context.Context, tx *store.Tx, addr string) (*domain.Referrer, bool, error) {
	id := domain.ReferrerID(addr)
	return store.UpsertDefault[domain.Referrer](ctx, tx, id, func() *domain.Referrer {
		return domain.NewReferrer(id)
	})
}

// GetOrCreateTier loads the tier or registers it with a zero rebate and the default discount share.
func GetOrCreateTier(ctx context.Context, tx *store.Tx, tierID uint64) (*domain.Tier, error) {
	id := domain.TierID(tierID)
	tier, _, err := store.UpsertDefault[domain.Tier](ctx, tx, id, func() *domain.Tier {
		return domain.NewTier(id)
	})
	return tier, err
}

// RegisterCode binds code to owner. A second registration of the same code replaces the owner.
func RegisterCode(tx *store.Tx, owner, code string) (*domain.ReferralCode, error) {
	rc := &domain.ReferralCode{
		ID:    domain.ReferralCodeID(code),
		Code:  domain.NormalizeHex(code),
		Owner: domain.NormalizeHex(owner),
	}
	if err := store.Put(tx, rc); err != nil {
		return nil, err
	}
	return rc, nil
}

// TransferCodeOwner moves an existing code to newOwner.
func TransferCodeOwner(ctx context.Context, tx *store.Tx, code, newOwner string) error {
	rc, err := store.Load[domain.ReferralCode](ctx, tx, domain.ReferralCodeID(code))
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrCodeNotFound, domain.NormalizeHex(code))
	}
	if err != nil {
		return err
	}

	rc.Owner = domain.NormalizeHex(newOwner)
	return store.Put(tx, rc)
}

// tierFor resolves the referrer's tier. A missing tier fails the event unless
// materializeDefaultTier is set.
func (e *Engine) tierFor(ctx context.Context, tx *store.Tx, tierID uint64) (*domain.Tier, error) {
	if e.materializeDefaultTier {
		return GetOrCreateTier(ctx, tx, tierID)
	}

	tier, err := store.Load[domain.Tier](ctx, tx, domain.TierID(tierID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrTierNotFound, tierID)
	}
	return tier, err
}

func (e *Engine) onSetReferrerDiscountShare(ctx context.Context, tx *store.Tx, ev domain.SetReferrerDiscountShare) error {
	ref, _, err := GetOrCreateReferrer(ctx, tx, ev.Referrer)
	if err != nil {
		return err
	}
	ref.DiscountShare = ev.DiscountShare
	return store.Put(tx, ref)
}

func (e *Engine) onSetReferrerTier(ctx context.Context, tx *store.Tx, ev domain.SetReferrerTier) error {
	ref, _, err := GetOrCreateReferrer(ctx, tx, ev.Referrer)
	if err != nil {
		return err
	}
	ref.TierID = ev.TierID
	return store.Put(tx, ref)
}

func (e *Engine) onSetTier(ctx context.Context, tx *store.Tx, ev domain.SetTier) error {
	tier, err := GetOrCreateTier(ctx, tx, ev.TierID)
	if err != nil {
		return err
	}
	tier.TotalRebate = ev.TotalRebate
	tier.DiscountShare = ev.DiscountShare
	return store.Put(tx, tier)
}
