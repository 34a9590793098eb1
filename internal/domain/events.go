package domain

type EventKind string

const (
	KindBatchSend                EventKind = "BatchSend"
	KindRegisterCode             EventKind = "RegisterCode"
	KindSetCodeOwner             EventKind = "SetCodeOwner"
	KindGovSetCodeOwner          EventKind = "GovSetCodeOwner"
	KindSetHandler               EventKind = "SetHandler"
	KindSetReferrerDiscountShare EventKind = "SetReferrerDiscountShare"
	KindSetReferrerTier          EventKind = "SetReferrerTier"
	KindSetTier                  EventKind = "SetTier"
	KindSetTraderReferralCode    EventKind = "SetTraderReferralCode"
	KindIncreasePositionReferral EventKind = "IncreasePositionReferral"
	KindDecreasePositionReferral EventKind = "DecreasePositionReferral"
)

// EventMeta is the delivery context every contract event carries.
type EventMeta struct {
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"` // 0x-prefixed 66 chars
	LogIndex    uint64 `json:"log_index"`
	Timestamp   uint64 `json:"timestamp"` // block time, unix seconds
}

// ID is the idempotency key of the event.
func (m EventMeta) ID() string {
	return EventID(m.TxHash, m.LogIndex)
}

// Event is implemented by every decoded contract event.
type Event interface {
	Meta() EventMeta
	Kind() EventKind
}

func (m EventMeta) Meta() EventMeta { return m }

type BatchSend struct {
	EventMeta
	TypeID   uint64
	Token    string
	Accounts []string
	Amounts  []Amount
}

func (BatchSend) Kind() EventKind { return KindBatchSend }

type RegisterCode struct {
	EventMeta
	Account string
	Code    string
}

func (RegisterCode) Kind() EventKind { return KindRegisterCode }

type SetCodeOwner struct {
	EventMeta
	Account    string
	NewAccount string
	Code       string
}

func (SetCodeOwner) Kind() EventKind { return KindSetCodeOwner }

type SetReferrerDiscountShare struct {
	EventMeta
	Referrer      string
	DiscountShare uint64
}

func (SetReferrerDiscountShare) Kind() EventKind { return KindSetReferrerDiscountShare }

type SetReferrerTier struct {
	EventMeta
	Referrer string
	TierID   uint64
}

func (SetReferrerTier) Kind() EventKind { return KindSetReferrerTier }

type SetTier struct {
	EventMeta
	TierID        uint64
	TotalRebate   uint64
	DiscountShare uint64
}

func (SetTier) Kind() EventKind { return KindSetTier }

// PositionReferral covers both IncreasePositionReferral and DecreasePositionReferral.
type PositionReferral struct {
	EventMeta
	Direction    Direction
	Account      string // trader
	SizeDelta    Amount
	MarginFeeBps uint64 // as emitted; rebates use the fixed margin fee
	ReferralCode string
	Referrer     string
}

func (e PositionReferral) Kind() EventKind {
	if e.Direction == DirectionDecrease {
		return KindDecreasePositionReferral
	}
	return KindIncreasePositionReferral
}

// Acknowledged is a decoded event this engine takes no action on
// (GovSetCodeOwner, SetHandler, SetTraderReferralCode).
type Acknowledged struct {
	EventMeta
	Name EventKind
}

func (e Acknowledged) Kind() EventKind { return e.Name }
