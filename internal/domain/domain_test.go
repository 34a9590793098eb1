package domain

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucket_TotalIsConstant(t *testing.T) {
	for _, ts := range []uint64{0, 1, 86399, 86400, 1_700_000_000} {
		assert.Equal(t, uint64(0), Bucket(ts, PeriodTotal))
	}
}

func TestBucket_DailyFloorsToUTCDay(t *testing.T) {
	const day = 1_700_006_400 // 2023-11-15T00:00:00Z

	assert.Equal(t, uint64(day), Bucket(day, PeriodDaily))
	assert.Equal(t, uint64(day), Bucket(day+1, PeriodDaily))
	assert.Equal(t, uint64(day), Bucket(day+86399, PeriodDaily))
	assert.Equal(t, uint64(day+86400), Bucket(day+86400, PeriodDaily))
	assert.Less(t, Bucket(day+86399, PeriodDaily), Bucket(day+86400, PeriodDaily))
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("daily")
	require.NoError(t, err)
	assert.Equal(t, PeriodDaily, p)

	_, err = ParsePeriod("weekly")
	assert.Error(t, err)
}

func TestKeyLayouts(t *testing.T) {
	statID := ReferrerStatID(PeriodDaily, 86400, "0xC0DE", "0xAA")

	assert.Equal(t, "daily:86400:0xc0de:0xaa", statID)
	assert.Equal(t, "daily:86400:0xc0de:0xaa:0xbb", UniqueReferralID(statID, "0xBB"))
	assert.Equal(t, "total:0", GlobalStatID(PeriodTotal, 0))
	assert.Equal(t, "total:0:0xbb", ReferralStatID(0, "0xBB"))
	assert.Equal(t, "0xabc:7", EventID("0xABC", 7))
	assert.Equal(t, "0xcc:0xabc:7", DistributionID("0xCC", "0xabc", 7))
	assert.Equal(t, "3", TierID(3))
	assert.Equal(t, "0xaa", ReferrerID("AA"))
}

func TestParseEventID(t *testing.T) {
	parsed, err := ParseEventID("0xABC:12")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", parsed.TxHash)
	assert.Equal(t, uint64(12), parsed.LogIndex)

	_, err = ParseEventID("0xabc")
	assert.Error(t, err)

	_, err = ParseEventID("0xabc:x")
	assert.Error(t, err)
}

func TestZeroSentinels(t *testing.T) {
	assert.True(t, IsZeroAddress(ZeroAddress))
	assert.True(t, IsZeroAddress("0X0000000000000000000000000000000000000000"))
	assert.False(t, IsZeroAddress("0xaa"))

	assert.True(t, IsZeroCode(ZeroCode))
	assert.True(t, IsZeroCode("0x00"))
	assert.False(t, IsZeroCode("0x0100"))
}

func TestAmount_JSONRoundTripKeepsPrecision(t *testing.T) {
	big256 := new(big.Int).Lsh(big.NewInt(1), 200)
	a, err := AmountFromBig(big256)
	require.NoError(t, err)

	b, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Equal(t, `"`+big256.String()+`"`, string(b))

	var back Amount
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, 0, a.Cmp(back))

	require.NoError(t, json.Unmarshal([]byte(`42`), &back))
	assert.Equal(t, "42", back.String())
}

func TestAmount_RejectsOutOfRange(t *testing.T) {
	_, err := AmountFromBig(big.NewInt(-1))
	assert.ErrorIs(t, err, ErrAmountOverflow)

	_, err = AmountFromBig(new(big.Int).Lsh(big.NewInt(1), 256))
	assert.ErrorIs(t, err, ErrAmountOverflow)

	_, err = ParseAmount("12a")
	assert.Error(t, err)
}

func TestAmount_AddOverflow(t *testing.T) {
	max, err := AmountFromBig(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)))
	require.NoError(t, err)

	_, err = max.Add(NewAmount(1))
	assert.ErrorIs(t, err, ErrAmountOverflow)

	sum, err := NewAmount(2).Add(NewAmount(3))
	require.NoError(t, err)
	assert.Equal(t, "5", sum.String())
}

func TestGlobalStat_CopyCumulative(t *testing.T) {
	total := &GlobalStat{Volume: NewAmount(10), Trades: 3, ReferrersCount: 2, ReferralCodesCount: 4}
	daily := &GlobalStat{Volume: NewAmount(1), Trades: 1}

	daily.CopyCumulative(total)

	assert.Equal(t, "10", daily.VolumeCumulative.String())
	assert.Equal(t, uint64(3), daily.TradesCumulative)
	assert.Equal(t, uint64(2), daily.ReferrersCountCumulative)
	assert.Equal(t, uint64(4), daily.ReferralCodesCountCumulative)
	assert.Equal(t, "1", daily.Volume.String())
}

func TestPositionReferral_Kind(t *testing.T) {
	assert.Equal(t, KindIncreasePositionReferral, PositionReferral{Direction: DirectionIncrease}.Kind())
	assert.Equal(t, KindDecreasePositionReferral, PositionReferral{Direction: DirectionDecrease}.Kind())
}
