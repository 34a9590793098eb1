package domain

import "time"

// Collection names the keyed entity collections of the store.
type Collection string

const (
	CollectionTiers           Collection = "tiers"
	CollectionReferrers       Collection = "referrers"
	CollectionReferralCodes   Collection = "referral_codes"
	CollectionUniqueReferrals Collection = "unique_referrals"
	CollectionReferrerStats   Collection = "referrer_stats"
	CollectionGlobalStats     Collection = "global_stats"
	CollectionReferralStats   Collection = "referral_stats"
	CollectionVolumeRecords   Collection = "referral_volume_records"
	CollectionDistributions   Collection = "distributions"
	CollectionProcessedEvents Collection = "processed_events"
)

// DefaultTierDiscountShare is the discount share (bps) of a tier nobody configured yet.
const DefaultTierDiscountShare = 5000

type Tier struct {
	ID            string `json:"id"`
	TotalRebate   uint64 `json:"totalRebate"`   // bps
	DiscountShare uint64 `json:"discountShare"` // bps
}

func NewTier(id string) *Tier {
	return &Tier{ID: id, DiscountShare: DefaultTierDiscountShare}
}

func (t *Tier) Collection() Collection { return CollectionTiers }
func (t *Tier) Key() string            { return t.ID }

type Referrer struct {
	ID            string `json:"id"`
	TierID        uint64 `json:"tierId"`
	DiscountShare uint64 `json:"discountShare"` // bps override, 0 = use the tier's
}

func NewReferrer(id string) *Referrer {
	return &Referrer{ID: id}
}

func (r *Referrer) Collection() Collection { return CollectionReferrers }
func (r *Referrer) Key() string            { return r.ID }

type ReferralCode struct {
	ID    string `json:"id"`
	Code  string `json:"code"`
	Owner string `json:"owner"`
}

func (c *ReferralCode) Collection() Collection { return CollectionReferralCodes }
func (c *ReferralCode) Key() string            { return c.ID }

// UniqueReferral is write-once: its existence means the referral already traded under the stat.
type UniqueReferral struct {
	ID           string `json:"id"`
	ReferrerStat string `json:"referrerStat"`
	Referral     string `json:"referral"`
}

func (u *UniqueReferral) Collection() Collection { return CollectionUniqueReferrals }
func (u *UniqueReferral) Key() string            { return u.ID }

type ReferrerStat struct {
	ID           string `json:"id"`
	Period       Period `json:"period"`
	Timestamp    uint64 `json:"timestamp"`
	Referrer     string `json:"referrer"`
	ReferralCode string `json:"referralCode"`

	Volume                         Amount `json:"volume"`
	VolumeCumulative               Amount `json:"volumeCumulative"`
	Trades                         uint64 `json:"trades"`
	TradesCumulative               uint64 `json:"tradesCumulative"`
	TradedReferralsCount           uint64 `json:"tradedReferralsCount"`
	TradedReferralsCountCumulative uint64 `json:"tradedReferralsCountCumulative"`
	TotalRebateUsd                 Amount `json:"totalRebateUsd"`
	TotalRebateUsdCumulative       Amount `json:"totalRebateUsdCumulative"`
	DiscountUsd                    Amount `json:"discountUsd"`
	DiscountUsdCumulative          Amount `json:"discountUsdCumulative"`
}

func (s *ReferrerStat) Collection() Collection { return CollectionReferrerStats }
func (s *ReferrerStat) Key() string            { return s.ID }

// MirrorCumulative copies running values into the cumulative fields of a "total" stat.
func (s *ReferrerStat) MirrorCumulative() {
	s.CopyCumulative(s)
}

// CopyCumulative takes the cumulative fields from the running values of total.
func (s *ReferrerStat) CopyCumulative(total *ReferrerStat) {
	s.VolumeCumulative = total.Volume
	s.TradesCumulative = total.Trades
	s.TradedReferralsCountCumulative = total.TradedReferralsCount
	s.TotalRebateUsdCumulative = total.TotalRebateUsd
	s.DiscountUsdCumulative = total.DiscountUsd
}

type GlobalStat struct {
	ID        string `json:"id"`
	Period    Period `json:"period"`
	Timestamp uint64 `json:"timestamp"`

	Volume                       Amount `json:"volume"`
	VolumeCumulative             Amount `json:"volumeCumulative"`
	Trades                       uint64 `json:"trades"`
	TradesCumulative             uint64 `json:"tradesCumulative"`
	TotalRebateUsd               Amount `json:"totalRebateUsd"`
	TotalRebateUsdCumulative     Amount `json:"totalRebateUsdCumulative"`
	DiscountUsd                  Amount `json:"discountUsd"`
	DiscountUsdCumulative        Amount `json:"discountUsdCumulative"`
	ReferrersCount               uint64 `json:"referrersCount"`
	ReferrersCountCumulative     uint64 `json:"referrersCountCumulative"`
	ReferralCodesCount           uint64 `json:"referralCodesCount"`
	ReferralCodesCountCumulative uint64 `json:"referralCodesCountCumulative"`
}

func (s *GlobalStat) Collection() Collection { return CollectionGlobalStats }
func (s *GlobalStat) Key() string            { return s.ID }

func (s *GlobalStat) MirrorCumulative() {
	s.CopyCumulative(s)
}

func (s *GlobalStat) CopyCumulative(total *GlobalStat) {
	s.VolumeCumulative = total.Volume
	s.TradesCumulative = total.Trades
	s.TotalRebateUsdCumulative = total.TotalRebateUsd
	s.DiscountUsdCumulative = total.DiscountUsd
	s.ReferrersCountCumulative = total.ReferrersCount
	s.ReferralCodesCountCumulative = total.ReferralCodesCount
}

// ReferralStat is the per-trader rollup, kept for the "total" period only.
type ReferralStat struct {
	ID        string `json:"id"`
	Period    Period `json:"period"`
	Timestamp uint64 `json:"timestamp"`
	Referral  string `json:"referral"`

	Volume                Amount `json:"volume"`
	VolumeCumulative      Amount `json:"volumeCumulative"`
	DiscountUsd           Amount `json:"discountUsd"`
	DiscountUsdCumulative Amount `json:"discountUsdCumulative"`
}

func (s *ReferralStat) Collection() Collection { return CollectionReferralStats }
func (s *ReferralStat) Key() string            { return s.ID }

type Direction string

const (
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
)

// ReferralVolumeRecord is the immutable audit entry of one position-referral event.
type ReferralVolumeRecord struct {
	ID              string    `json:"id"`
	Direction       Direction `json:"direction"`
	Volume          Amount    `json:"volume"`
	Referral        string    `json:"referral"`
	ReferralCode    string    `json:"referralCode"`
	Referrer        string    `json:"referrer"`
	TierID          uint64    `json:"tierId"`
	MarginFee       uint64    `json:"marginFee"`     // bps
	TotalRebate     uint64    `json:"totalRebate"`   // bps
	DiscountShare   uint64    `json:"discountShare"` // effective bps
	FeesUsd         Amount    `json:"feesUsd"`
	TotalRebateUsd  Amount    `json:"totalRebateUsd"`
	DiscountUsd     Amount    `json:"discountUsd"`
	BlockNumber     uint64    `json:"blockNumber"`
	TransactionHash string    `json:"transactionHash"`
	Timestamp       uint64    `json:"timestamp"`
}

func (r *ReferralVolumeRecord) Collection() Collection { return CollectionVolumeRecords }
func (r *ReferralVolumeRecord) Key() string            { return r.ID }

// Distribution is one payout line of a batch-send event.
type Distribution struct {
	ID              string `json:"id"`
	TypeID          uint64 `json:"typeId"`
	Token           string `json:"token"`
	Receiver        string `json:"receiver"`
	Amount          Amount `json:"amount"`
	BlockNumber     uint64 `json:"blockNumber"`
	TransactionHash string `json:"transactionHash"`
	Timestamp       uint64 `json:"timestamp"`
}

func (d *Distribution) Collection() Collection { return CollectionDistributions }
func (d *Distribution) Key() string            { return d.ID }

// ProcessedEvent marks an event id as applied; written in the same commit as the event's counters.
type ProcessedEvent struct {
	ID          string    `json:"id"`
	Kind        EventKind `json:"kind"`
	BlockNumber uint64    `json:"blockNumber"`
}

func (p *ProcessedEvent) Collection() Collection { return CollectionProcessedEvents }
func (p *ProcessedEvent) Key() string            { return p.ID }

// Patch(delta/slice) for NATS fan-out: the stats touched by one committed event
type StatsPatch struct {
	Topic         string          `json:"topic"` // example: "referrer.<address>" or "global"
	EventID       string          `json:"event_id"`
	Kind          EventKind       `json:"kind"`
	GeneratedAt   time.Time       `json:"ts"`
	ReferrerStats []*ReferrerStat `json:"referrer_stats,omitempty"`
	GlobalStats   []*GlobalStat   `json:"global_stats,omitempty"`
	ReferralStat  *ReferralStat   `json:"referral_stat,omitempty"`
}
