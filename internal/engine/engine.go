package engine

import (
	"context"
	"errors"
	"fmt"

	"referralstats/internal/config"
	"referralstats/internal/domain"
	"referralstats/internal/store"

	"gitlab.com/nevasik7/alerting/logger"
)

/*
	Engine folds one decoded contract event into the entity store.
	All reads and writes go through the caller's *store.Tx, so an event either
	lands completely on Commit or not at all.
*/

var (
	// ErrIntegrity marks events that contradict the stored state. The event must not be committed.
	ErrIntegrity = errors.New("integrity violation")

	ErrCodeNotFound   = fmt.Errorf("%w: referral code not registered", ErrIntegrity)
	ErrTierNotFound   = fmt.Errorf("%w: tier not found", ErrIntegrity)
	ErrMalformedEvent = fmt.Errorf("%w: malformed event", ErrIntegrity)

	ErrUnsupportedEvent = errors.New("unsupported event type")
)

// Outcome describes what one Apply changed, for broadcasting and audit.
type Outcome struct {
	EventID string
	Kind    domain.EventKind

	Duplicate bool // already processed, nothing written
	Dropped   bool // zero trader or zero code
	Noop      bool // acknowledged kind without effects

	ReferrerStats []*domain.ReferrerStat
	GlobalStats   []*domain.GlobalStat
	ReferralStat  *domain.ReferralStat
	VolumeRecord  *domain.ReferralVolumeRecord
	Distributions []*domain.Distribution
}

// Skipped reports whether the event left the store untouched.
func (o *Outcome) Skipped() bool {
	return o.Duplicate || o.Dropped || o.Noop
}

type Engine struct {
	log                    logger.Logger
	replayGuard            bool
	materializeDefaultTier bool
}

func New(log logger.Logger, cfg *config.EngineConfig) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("config is required to the engine")
	}
	if log == nil {
		return nil, errors.New("logger is required to the engine")
	}

	return &Engine{
		log:                    log,
		replayGuard:            cfg.ReplayGuard,
		materializeDefaultTier: cfg.MaterializeDefaultTier,
	}, nil
}

// Apply stages every write caused by ev in tx. On error the caller must drop tx.
func (e *Engine) Apply(ctx context.Context, tx *store.Tx, ev domain.Event) (*Outcome, error) {
	if ev == nil {
		return nil, fmt.Errorf("%w: nil event", ErrMalformedEvent)
	}

	meta := ev.Meta()
	out := &Outcome{EventID: meta.ID(), Kind: ev.Kind()}

	if _, ok := ev.(domain.Acknowledged); ok {
		out.Noop = true
		return out, nil
	}
	if pr, ok := ev.(domain.PositionReferral); ok && isUnattributed(pr) {
		e.log.Debugf("Position referral %s dropped: trader=%s code=%s", out.EventID, pr.Account, pr.ReferralCode)
		out.Dropped = true
		return out, nil
	}

	if e.replayGuard {
		seen, err := store.Exists(ctx, tx, domain.CollectionProcessedEvents, out.EventID)
		if err != nil {
			return nil, fmt.Errorf("replay check %s: %w", out.EventID, err)
		}
		if seen {
			e.log.Debugf("Event %s already processed, skipping", out.EventID)
			out.Duplicate = true
			return out, nil
		}
	}

	var err error
	switch v := ev.(type) {
	case domain.BatchSend:
		err = e.onBatchSend(tx, v, out)
	case domain.RegisterCode:
		err = e.onRegisterCode(ctx, tx, v, out)
	case domain.SetCodeOwner:
		err = TransferCodeOwner(ctx, tx, v.Code, v.NewAccount)
	case domain.SetReferrerDiscountShare:
		err = e.onSetReferrerDiscountShare(ctx, tx, v)
	case domain.SetReferrerTier:
		err = e.onSetReferrerTier(ctx, tx, v)
	case domain.SetTier:
		err = e.onSetTier(ctx, tx, v)
	case domain.PositionReferral:
		err = e.onPositionReferral(ctx, tx, v, out)
	default:
		err = fmt.Errorf("%w: %T", ErrUnsupportedEvent, ev)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", out.Kind, out.EventID, err)
	}

	if e.replayGuard {
		marker := &domain.ProcessedEvent{ID: out.EventID, Kind: out.Kind, BlockNumber: meta.BlockNumber}
		if err = store.Put(tx, marker); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// isUnattributed is true for trades without a trader or without a referral code.
func isUnattributed(ev domain.PositionReferral) bool {
	return ev.Account == "" || domain.IsZeroAddress(ev.Account) ||
		ev.ReferralCode == "" || domain.IsZeroCode(ev.ReferralCode)
}

// adder sums amounts into stat fields and keeps the first overflow.
type adder struct{ err error }

func (a *adder) add(dst *domain.Amount, v domain.Amount) {
	if a.err != nil {
		return
	}
	sum, err := dst.Add(v)
	if err != nil {
		a.err = fmt.Errorf("%w: %w", ErrIntegrity, err)
		return
	}
	*dst = sum
}
