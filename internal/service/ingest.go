package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"referralstats/internal/chain"
	"referralstats/internal/domain"
)

// LogDecoder is satisfied by *chain.Decoder.
type LogDecoder interface {
	Decode(env chain.LogEnvelope) (domain.Event, error)
}

// IngestResult counts what happened to the envelopes of one payload.
type IngestResult struct {
	Applied int `json:"applied"`
	Skipped int `json:"skipped"` // duplicates, sentinels, no-op kinds
	Ignored int `json:"ignored"` // foreign or removed logs
}

// ParseEnvelopes accepts a single JSON envelope or a JSON array of them.
func ParseEnvelopes(data []byte) ([]chain.LogEnvelope, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty payload")
	}

	if data[0] == '[' {
		var envs []chain.LogEnvelope
		if err := json.Unmarshal(data, &envs); err != nil {
			return nil, fmt.Errorf("decode envelopes: %w", err)
		}
		return envs, nil
	}

	var env chain.LogEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return []chain.LogEnvelope{env}, nil
}

// Ingest decodes and processes envelopes in order and stops at the first failing one.
// Logs of foreign events and reorged logs are ignored.
func (a *AggregatorService) Ingest(ctx context.Context, dec LogDecoder, source string, envs []chain.LogEnvelope) (IngestResult, error) {
	var res IngestResult

	for i, env := range envs {
		ev, err := dec.Decode(env)
		switch {
		case errors.Is(err, chain.ErrUnknownEvent), errors.Is(err, chain.ErrRemovedLog):
			a.log.Debugf("Log ignored from %s: %v", source, err)
			res.Ignored++
			continue
		case err != nil:
			a.metrics.DecodeFailed(source)
			return res, fmt.Errorf("envelope %d: %w", i, err)
		}

		out, err := a.Process(ctx, ev)
		if err != nil {
			return res, fmt.Errorf("envelope %d: %w", i, err)
		}
		if out.Skipped() {
			res.Skipped++
		} else {
			res.Applied++
		}
	}

	return res, nil
}

// HandleMessage is the raw-bytes entry point used by the NATS subscription.
func (a *AggregatorService) HandleMessage(ctx context.Context, dec LogDecoder, source string, data []byte) (IngestResult, error) {
	envs, err := ParseEnvelopes(data)
	if err != nil {
		a.metrics.DecodeFailed(source)
		return IngestResult{}, err
	}
	return a.Ingest(ctx, dec, source, envs)
}
