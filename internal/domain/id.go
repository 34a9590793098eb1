package domain

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	ZeroAddress = "0x0000000000000000000000000000000000000000"
	ZeroCode    = "0x0000000000000000000000000000000000000000000000000000000000000000"
)

// Key layouts. Fields are joined with ":" and every field is either a decimal number,
// a period name or a lowercase 0x-hex string, none of which contain the separator.
//
//	Tier                 <tierId>
//	Referrer             <address>
//	ReferralCode         <code>
//	ReferrerStat         <period>:<bucket>:<code>:<referrer>
//	UniqueReferral       <referrerStatId>:<referral>
//	GlobalStat           <period>:<bucket>
//	ReferralStat         total:<bucket>:<referral>
//	ReferralVolumeRecord <txHash>:<logIndex>
//	Distribution         <receiver>:<txHash>:<logIndex>
//	ProcessedEvent       <txHash>:<logIndex>

// NormalizeHex lowercases a 0x-prefixed hex string, adding the prefix when missing.
func NormalizeHex(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return s
}

func IsZeroAddress(addr string) bool {
	return NormalizeHex(addr) == ZeroAddress
}

// IsZeroCode reports whether a referral code is unset. Any all-zero hex value counts.
func IsZeroCode(code string) bool {
	return strings.Trim(strings.TrimPrefix(NormalizeHex(code), "0x"), "0") == ""
}

func TierID(tierID uint64) string {
	return strconv.FormatUint(tierID, 10)
}

func ReferrerID(addr string) string {
	return NormalizeHex(addr)
}

func ReferralCodeID(code string) string {
	return NormalizeHex(code)
}

func ReferrerStatID(p Period, bucket uint64, code, referrer string) string {
	return fmt.Sprintf("%s:%d:%s:%s", p, bucket, NormalizeHex(code), NormalizeHex(referrer))
}

func UniqueReferralID(referrerStatID, referral string) string {
	return referrerStatID + ":" + NormalizeHex(referral)
}

func GlobalStatID(p Period, bucket uint64) string {
	return fmt.Sprintf("%s:%d", p, bucket)
}

func ReferralStatID(bucket uint64, referral string) string {
	return fmt.Sprintf("%s:%d:%s", PeriodTotal, bucket, NormalizeHex(referral))
}

// EventID = "<tx_hash>:<log_index>"
func EventID(txHash string, logIndex uint64) string {
	return fmt.Sprintf("%s:%d", NormalizeHex(txHash), logIndex)
}

func DistributionID(receiver, txHash string, logIndex uint64) string {
	return NormalizeHex(receiver) + ":" + EventID(txHash, logIndex)
}

type ParsedEventID struct {
	TxHash   string
	LogIndex uint64
}

func ParseEventID(id string) (ParsedEventID, error) {
	var out ParsedEventID

	parts := strings.Split(id, ":")
	if len(parts) != 2 {
		return out, fmt.Errorf("invalid event_id format: %s", id)
	}

	logIdx, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return out, fmt.Errorf("invalid log_index, err=%v", err)
	}

	out.TxHash = NormalizeHex(parts[0])
	out.LogIndex = logIdx
	return out, nil
}
