package engine

import (
	"fmt"

	"referralstats/internal/domain"
	"referralstats/internal/store"
)

// onBatchSend appends one Distribution per (receiver, amount) pair. A receiver listed twice
// in the same log maps to the same id, so the later line wins.
func (e *Engine) onBatchSend(tx *store.Tx, ev domain.BatchSend, out *Outcome) error {
	if len(ev.Accounts) != len(ev.Amounts) {
		return fmt.Errorf("%w: %d receivers, %d amounts", ErrMalformedEvent, len(ev.Accounts), len(ev.Amounts))
	}

	token := domain.NormalizeHex(ev.Token)
	txHash := domain.NormalizeHex(ev.TxHash)

	out.Distributions = make([]*domain.Distribution, 0, len(ev.Accounts))
	for i, receiver := range ev.Accounts {
		d := &domain.Distribution{
			ID:              domain.DistributionID(receiver, ev.TxHash, ev.LogIndex),
			TypeID:          ev.TypeID,
			Token:           token,
			Receiver:        domain.NormalizeHex(receiver),
			Amount:          ev.Amounts[i],
			BlockNumber:     ev.BlockNumber,
			TransactionHash: txHash,
			Timestamp:       ev.Timestamp,
		}
		if err := store.Put(tx, d); err != nil {
			return err
		}
		out.Distributions = append(out.Distributions, d)
	}
	return nil
}
