package service

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"referralstats/internal/chain"
	"referralstats/internal/config"
	"referralstats/internal/domain"
)

var contract = ethcmn.HexToAddress("0x0000000000000000000000000000000000000f00")

func encode(t *testing.T, dec *chain.Decoder, kind domain.EventKind, logIndex uint64, args ...interface{}) chain.LogEnvelope {
	t.Helper()
	env, err := dec.Encode(kind, meta(logIndex), contract, args...)
	require.NoError(t, err)
	return env
}

func TestParseEnvelopes(t *testing.T) {
	dec, err := chain.NewDecoder()
	require.NoError(t, err)
	env := encode(t, dec, domain.KindRegisterCode, 1, ethcmn.HexToAddress(owner), chain.Code32(code1))

	single, err := json.Marshal(env)
	require.NoError(t, err)
	batch, err := json.Marshal([]chain.LogEnvelope{env, env})
	require.NoError(t, err)

	envs, err := ParseEnvelopes(single)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, env.Timestamp, envs[0].Timestamp)
	assert.Equal(t, env.Log.TxHash, envs[0].Log.TxHash)

	envs, err = ParseEnvelopes(append([]byte("  \n"), batch...))
	require.NoError(t, err)
	assert.Len(t, envs, 2)

	_, err = ParseEnvelopes(nil)
	assert.Error(t, err)
	_, err = ParseEnvelopes([]byte("[{"))
	assert.Error(t, err)
	_, err = ParseEnvelopes([]byte(`{"timestamp":"soon"}`))
	assert.Error(t, err)
}

func TestIngest_DecodesAndApplies(t *testing.T) {
	f := newFixture(t, config.EngineConfig{ReplayGuard: true})
	f.bc.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	dec, err := chain.NewDecoder()
	require.NoError(t, err)

	removed := encode(t, dec, domain.KindSetTier, 3, big.NewInt(0), big.NewInt(1000), big.NewInt(5000))
	removed.Log.Removed = true

	foreign := encode(t, dec, domain.KindSetTier, 4, big.NewInt(0), big.NewInt(1000), big.NewInt(5000))
	foreign.Log.Topics[0] = ethcmn.HexToHash("0xdeadbeef")

	envs := []chain.LogEnvelope{
		encode(t, dec, domain.KindRegisterCode, 1, ethcmn.HexToAddress(owner), chain.Code32(code1)),
		encode(t, dec, domain.KindSetTier, 2, big.NewInt(0), big.NewInt(1000), big.NewInt(5000)),
		removed,
		foreign,
		encode(t, dec, domain.KindIncreasePositionReferral, 5,
			ethcmn.HexToAddress(trader), big.NewInt(1_000_000), big.NewInt(10), chain.Code32(code1), ethcmn.HexToAddress(owner)),
		encode(t, dec, domain.KindSetHandler, 6, ethcmn.HexToAddress(owner), true),
	}

	payload, err := json.Marshal(envs)
	require.NoError(t, err)

	res, err := f.svc.HandleMessage(context.Background(), dec, "nats", payload)
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Applied: 3, Skipped: 1, Ignored: 2}, res)

	assert.Equal(t, 1, f.st.Count(domain.CollectionVolumeRecords))
	require.Len(t, f.audit.records, 1)
	assert.Equal(t, "1000000", f.audit.records[0].Volume.String())

	// the same payload again is fully deduplicated
	res, err = f.svc.HandleMessage(context.Background(), dec, "nats", payload)
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Skipped: 4, Ignored: 2}, res)
	assert.Equal(t, 1, f.st.Count(domain.CollectionVolumeRecords))
}

func TestIngest_StopsAtMalformedLog(t *testing.T) {
	f := newFixture(t, config.EngineConfig{ReplayGuard: true})
	f.bc.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	dec, err := chain.NewDecoder()
	require.NoError(t, err)

	bad := encode(t, dec, domain.KindSetTier, 2, big.NewInt(0), big.NewInt(1000), big.NewInt(5000))
	bad.Log.Data = bad.Log.Data[:10]

	envs := []chain.LogEnvelope{
		encode(t, dec, domain.KindRegisterCode, 1, ethcmn.HexToAddress(owner), chain.Code32(code1)),
		bad,
		encode(t, dec, domain.KindSetTier, 3, big.NewInt(0), big.NewInt(1000), big.NewInt(5000)),
	}

	res, err := f.svc.Ingest(context.Background(), dec, "http", envs)
	require.Error(t, err)
	assert.ErrorIs(t, err, chain.ErrMalformedLog)
	assert.Contains(t, err.Error(), "envelope 1")
	assert.Equal(t, IngestResult{Applied: 1}, res)
	assert.Equal(t, 0, f.st.Count(domain.CollectionTiers))
	assert.Equal(t, 1, f.metrics.decode)
}

func TestHandleMessage_BadPayload(t *testing.T) {
	f := newFixture(t, config.EngineConfig{})

	dec, err := chain.NewDecoder()
	require.NoError(t, err)

	_, err = f.svc.HandleMessage(context.Background(), dec, "nats", []byte("not json"))
	assert.Error(t, err)
	assert.Equal(t, 1, f.metrics.decode)
}
