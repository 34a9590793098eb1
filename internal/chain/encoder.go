package chain

import (
	"fmt"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
	ethcmn "github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"referralstats/internal/domain"
)

// Encode builds the log of a named event as the contract would emit it.
// args follow the ABI input order, indexed inputs included.
func (d *Decoder) Encode(name domain.EventKind, meta domain.EventMeta, contract ethcmn.Address, args ...interface{}) (LogEnvelope, error) {
	ev, ok := d.abi.Events[string(name)]
	if !ok {
		return LogEnvelope{}, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
	}
	if len(args) != len(ev.Inputs) {
		return LogEnvelope{}, fmt.Errorf("%s takes %d arguments, got %d", name, len(ev.Inputs), len(args))
	}

	topics := []ethcmn.Hash{ev.ID}
	data := make([]interface{}, 0, len(args))
	for i, in := range ev.Inputs {
		if !in.Indexed {
			data = append(data, args[i])
			continue
		}
		t, err := ethabi.MakeTopics([]interface{}{args[i]})
		if err != nil {
			return LogEnvelope{}, fmt.Errorf("topic %s: %w", in.Name, err)
		}
		topics = append(topics, t[0][0])
	}

	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return LogEnvelope{}, fmt.Errorf("pack %s: %w", name, err)
	}

	return LogEnvelope{
		Timestamp: meta.Timestamp,
		Log: ethtypes.Log{
			Address:     contract,
			Topics:      topics,
			Data:        packed,
			BlockNumber: meta.BlockNumber,
			TxHash:      ethcmn.HexToHash(meta.TxHash),
			Index:       uint(meta.LogIndex),
		},
	}, nil
}

// Code32 turns a 0x-hex referral code into the bytes32 form the ABI expects.
func Code32(code string) [32]byte {
	var out [32]byte
	copy(out[:], ethcmn.HexToHash(code).Bytes())
	return out
}
