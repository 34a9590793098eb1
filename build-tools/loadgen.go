//go:build ignore

// Run: go run ./build-tools/loadgen.go -nats nats://localhost:4222 -subject referrals.logs -rps 500 -duration 60s -referrers 50
// HTTP: go run ./build-tools/loadgen.go -http http://localhost:8080 -config cmd/aggregator/config.yaml -batch 20

package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/big"
	mrand "math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/nats-io/nats.go"

	"referralstats/internal/chain"
	"referralstats/internal/config"
	"referralstats/internal/domain"
	"referralstats/internal/security"
)

// sink delivers one payload of envelopes to the aggregator.
type sink func(envs []chain.LogEnvelope) error

type generator struct {
	dec       *chain.Decoder
	contract  ethcmn.Address
	referrers []ethcmn.Address
	codes     [][32]byte
	traders   []ethcmn.Address
	block     uint64
	logIndex  uint64
}

func main() {
	var (
		url       = flag.String("nats", "nats://localhost:4222", "nats server url")
		subject   = flag.String("subject", "referrals.logs", "subject the aggregator consumes")
		rps       = flag.Int("rps", 500, "trades per second target")
		duration  = flag.Duration("duration", 30*time.Second, "how long to run")
		referrers = flag.Int("referrers", 20, "number of referrers with a registered code")
		traders   = flag.Int("traders", 1000, "number of distinct trader accounts")
		batch     = flag.Int("batch", 1, "envelopes per message")
		httpURL   = flag.String("http", "", "post to this aggregator base url instead of NATS")
		cfgPath   = flag.String("config", "cmd/aggregator/config.yaml", "aggregator config; security.jwt signs the HTTP token")
	)
	flag.Parse()

	dec, err := chain.NewDecoder()
	if err != nil {
		fmt.Printf("decoder init error: %v\n", err)
		os.Exit(1)
	}

	var publish sink
	if *httpURL != "" {
		if publish, err = httpSink(*httpURL, *cfgPath); err != nil {
			fmt.Printf("http sink error: %v\n", err)
			os.Exit(1)
		}
	} else {
		nc, err := nats.Connect(*url, nats.Name("referral-loadgen"))
		if err != nil {
			fmt.Printf("nats connect error: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			if err := nc.Flush(); err != nil {
				fmt.Printf("flush error: %v\n", err)
			}
			nc.Close()
		}()
		publish = natsSink(nc, *subject)
	}

	g := &generator{dec: dec, contract: randomAddress(), block: 1_000_000}
	for i := 0; i < *referrers; i++ {
		g.referrers = append(g.referrers, randomAddress())
		var code [32]byte
		_, _ = rand.Read(code[:])
		g.codes = append(g.codes, code)
	}
	for i := 0; i < *traders; i++ {
		g.traders = append(g.traders, randomAddress())
	}

	// tiers and codes must exist before the first trade
	seed, err := g.seed()
	if err != nil {
		fmt.Printf("seed error: %v\n", err)
		os.Exit(1)
	}
	if err = publish(seed); err != nil {
		fmt.Printf("publish seed error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("loadgen → nats=%s http=%s subject=%s rps=%d duration=%s\n", *url, *httpURL, *subject, *rps, duration.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	end := time.Now().Add(*duration)

	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	perTick := float64(*rps) / 10.0
	accum := 0.0
	sent := 0

loop:
	for {
		select {
		case <-ctx.Done():
			fmt.Println("signal received, stopping…")
			break loop
		case now := <-tick.C:
			if now.After(end) {
				break loop
			}

			accum += perTick
			n := int(math.Floor(accum))
			if n <= 0 {
				continue
			}
			accum -= float64(n)

			envs := make([]chain.LogEnvelope, 0, *batch)
			for i := 0; i < n; i++ {
				env, err := g.trade()
				if err != nil {
					fmt.Printf("encode error: %v\n", err)
					continue
				}
				envs = append(envs, env)
				if len(envs) == *batch {
					if err = publish(envs); err != nil {
						fmt.Printf("publish error: %v\n", err)
					}
					sent += len(envs)
					envs = envs[:0]
				}
			}
			if len(envs) > 0 {
				if err = publish(envs); err != nil {
					fmt.Printf("publish error: %v\n", err)
				}
				sent += len(envs)
			}
		}
	}

	fmt.Println("flushing…")
	fmt.Printf("done, trades=%d\n", sent)
}

func (g *generator) seed() ([]chain.LogEnvelope, error) {
	var out []chain.LogEnvelope

	for tier := int64(0); tier < 3; tier++ {
		env, err := g.encode(domain.KindSetTier, big.NewInt(tier), big.NewInt(1000+tier*500), big.NewInt(5000))
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}

	for i, ref := range g.referrers {
		env, err := g.encode(domain.KindRegisterCode, ref, g.codes[i])
		if err != nil {
			return nil, err
		}
		out = append(out, env)

		env, err = g.encode(domain.KindSetReferrerTier, ref, big.NewInt(int64(i%3)))
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}

func (g *generator) trade() (chain.LogEnvelope, error) {
	i := mrand.Intn(len(g.referrers))
	kind := domain.KindIncreasePositionReferral
	if mrand.Intn(3) == 0 {
		kind = domain.KindDecreasePositionReferral
	}

	// 10..100k USD with 30 decimals
	usd := big.NewInt(int64(10 + mrand.Intn(100_000)))
	size := new(big.Int).Mul(usd, new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil))

	return g.encode(kind,
		g.traders[mrand.Intn(len(g.traders))],
		size,
		big.NewInt(10),
		g.codes[i],
		g.referrers[i],
	)
}

func (g *generator) encode(kind domain.EventKind, args ...interface{}) (chain.LogEnvelope, error) {
	g.logIndex++
	if g.logIndex%50 == 0 {
		g.block++
	}

	var tx [32]byte
	_, _ = rand.Read(tx[:])

	meta := domain.EventMeta{
		BlockNumber: g.block,
		TxHash:      ethcmn.Hash(tx).Hex(),
		LogIndex:    g.logIndex,
		Timestamp:   uint64(time.Now().Unix()),
	}
	return g.dec.Encode(kind, meta, g.contract, args...)
}

func natsSink(nc *nats.Conn, subject string) sink {
	return func(envs []chain.LogEnvelope) error {
		b, err := json.Marshal(envs)
		if err != nil {
			return err
		}
		return nc.Publish(subject, b)
	}
}

// httpSink posts to /api/events with a token minted from the aggregator's own key pair.
func httpSink(baseURL, cfgPath string) (sink, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	signer, err := security.NewRS256Signer(&cfg.Security.JWT)
	if err != nil {
		return nil, err
	}
	token, err := signer.Mint("loadgen", []string{security.ScopeIngest}, 0)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	endpoint := baseURL + "/api/events"

	return func(envs []chain.LogEnvelope) error {
		b, err := json.Marshal(envs)
		if err != nil {
			return err
		}
		req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(b))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			return fmt.Errorf("POST %s: %s", endpoint, resp.Status)
		}
		return nil
	}, nil
}

func randomAddress() ethcmn.Address {
	var a ethcmn.Address
	_, _ = rand.Read(a[:])
	return a
}
