package chain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"referralstats/internal/domain"
)

var (
	ErrUnknownEvent = errors.New("unknown event topic")
	ErrRemovedLog   = errors.New("log removed by reorg")
	ErrMalformedLog = errors.New("malformed log")
)

// LogEnvelope is the wire form of one contract log plus its block time.
type LogEnvelope struct {
	Timestamp uint64       `json:"timestamp"`
	Log       ethtypes.Log `json:"log"`
}

// Decoder turns raw referral-contract logs into domain events.
type Decoder struct {
	abi ethabi.ABI
}

func NewDecoder() (*Decoder, error) {
	parsed, err := ethabi.JSON(strings.NewReader(referralsABI))
	if err != nil {
		return nil, fmt.Errorf("couldn't load referrals ABI: %w", err)
	}
	return &Decoder{abi: parsed}, nil
}

func (d *Decoder) Decode(env LogEnvelope) (domain.Event, error) {
	l := env.Log
	if l.Removed {
		return nil, fmt.Errorf("%w: %s:%d", ErrRemovedLog, l.TxHash.Hex(), l.Index)
	}
	if len(l.Topics) == 0 {
		return nil, fmt.Errorf("%w: anonymous log", ErrUnknownEvent)
	}

	ev, err := d.abi.EventByID(l.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, l.Topics[0].Hex())
	}

	fields := make(map[string]interface{}, len(ev.Inputs))
	if err = d.abi.UnpackIntoMap(fields, ev.Name, l.Data); err != nil {
		return nil, fmt.Errorf("%w: %s data: %w", ErrMalformedLog, ev.Name, err)
	}

	var indexed ethabi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(l.Topics)-1 != len(indexed) {
		return nil, fmt.Errorf("%w: %s has %d topics, want %d", ErrMalformedLog, ev.Name, len(l.Topics)-1, len(indexed))
	}
	if err = ethabi.ParseTopicsIntoMap(fields, indexed, l.Topics[1:]); err != nil {
		return nil, fmt.Errorf("%w: %s topics: %w", ErrMalformedLog, ev.Name, err)
	}

	meta := domain.EventMeta{
		BlockNumber: l.BlockNumber,
		TxHash:      strings.ToLower(l.TxHash.Hex()),
		LogIndex:    uint64(l.Index),
		Timestamp:   env.Timestamp,
	}

	out, err := buildEvent(domain.EventKind(ev.Name), meta, fieldReader{fields: fields})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", ev.Name, meta.ID(), err)
	}
	return out, nil
}

func buildEvent(kind domain.EventKind, meta domain.EventMeta, f fieldReader) (domain.Event, error) {
	var ev domain.Event

	switch kind {
	case domain.KindBatchSend:
		ev = domain.BatchSend{
			EventMeta: meta,
			TypeID:    f.u64("typeId"),
			Token:     f.address("token"),
			Accounts:  f.addresses("accounts"),
			Amounts:   f.amounts("amounts"),
		}
	case domain.KindRegisterCode:
		ev = domain.RegisterCode{EventMeta: meta, Account: f.address("account"), Code: f.code("code")}
	case domain.KindSetCodeOwner:
		ev = domain.SetCodeOwner{
			EventMeta:  meta,
			Account:    f.address("account"),
			NewAccount: f.address("newAccount"),
			Code:       f.code("code"),
		}
	case domain.KindSetReferrerDiscountShare:
		ev = domain.SetReferrerDiscountShare{
			EventMeta:     meta,
			Referrer:      f.address("referrer"),
			DiscountShare: f.u64("discountShare"),
		}
	case domain.KindSetReferrerTier:
		ev = domain.SetReferrerTier{EventMeta: meta, Referrer: f.address("referrer"), TierID: f.u64("tierId")}
	case domain.KindSetTier:
		ev = domain.SetTier{
			EventMeta:     meta,
			TierID:        f.u64("tierId"),
			TotalRebate:   f.u64("totalRebate"),
			DiscountShare: f.u64("discountShare"),
		}
	case domain.KindIncreasePositionReferral, domain.KindDecreasePositionReferral:
		dir := domain.DirectionIncrease
		if kind == domain.KindDecreasePositionReferral {
			dir = domain.DirectionDecrease
		}
		ev = domain.PositionReferral{
			EventMeta:    meta,
			Direction:    dir,
			Account:      f.address("account"),
			SizeDelta:    f.amount("sizeDelta"),
			MarginFeeBps: f.u64("marginFeeBasisPoints"),
			ReferralCode: f.code("referralCode"),
			Referrer:     f.address("referrer"),
		}
	case domain.KindGovSetCodeOwner, domain.KindSetHandler, domain.KindSetTraderReferralCode:
		ev = domain.Acknowledged{EventMeta: meta, Name: kind}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, kind)
	}

	if f.err != nil {
		return nil, f.err
	}
	return ev, nil
}

// fieldReader converts unpacked ABI values and keeps the first conversion error.
type fieldReader struct {
	fields map[string]interface{}
	err    error
}

func (f *fieldReader) fail(name string, v interface{}) {
	if f.err == nil {
		f.err = fmt.Errorf("%w: field %s has type %T", ErrMalformedLog, name, v)
	}
}

func (f *fieldReader) address(name string) string {
	v, ok := f.fields[name].(ethcmn.Address)
	if !ok {
		f.fail(name, f.fields[name])
		return ""
	}
	return strings.ToLower(v.Hex())
}

func (f *fieldReader) addresses(name string) []string {
	v, ok := f.fields[name].([]ethcmn.Address)
	if !ok {
		f.fail(name, f.fields[name])
		return nil
	}
	out := make([]string, len(v))
	for i, a := range v {
		out[i] = strings.ToLower(a.Hex())
	}
	return out
}

func (f *fieldReader) code(name string) string {
	v, ok := f.fields[name].([32]byte)
	if !ok {
		f.fail(name, f.fields[name])
		return ""
	}
	return hexutil.Encode(v[:])
}

func (f *fieldReader) amount(name string) domain.Amount {
	v, ok := f.fields[name].(*big.Int)
	if !ok {
		f.fail(name, f.fields[name])
		return domain.Amount{}
	}
	a, err := domain.AmountFromBig(v)
	if err != nil && f.err == nil {
		f.err = fmt.Errorf("%w: %s: %w", ErrMalformedLog, name, err)
	}
	return a
}

func (f *fieldReader) amounts(name string) []domain.Amount {
	v, ok := f.fields[name].([]*big.Int)
	if !ok {
		f.fail(name, f.fields[name])
		return nil
	}
	out := make([]domain.Amount, len(v))
	for i, b := range v {
		a, err := domain.AmountFromBig(b)
		if err != nil && f.err == nil {
			f.err = fmt.Errorf("%w: %s[%d]: %w", ErrMalformedLog, name, i, err)
		}
		out[i] = a
	}
	return out
}

// u64 is used for ids and basis points, which never exceed 64 bits on chain.
func (f *fieldReader) u64(name string) uint64 {
	v, ok := f.fields[name].(*big.Int)
	if !ok {
		f.fail(name, f.fields[name])
		return 0
	}
	if !v.IsUint64() {
		if f.err == nil {
			f.err = fmt.Errorf("%w: %s=%s exceeds uint64", ErrMalformedLog, name, v)
		}
		return 0
	}
	return v.Uint64()
}
