// Command replay feeds recorded contract logs through the aggregation pipeline.
//
// The input holds one JSON payload per line, either a single log envelope or an array
// of them, in chain order. Run: go run ./cmd/replay -config cmd/aggregator/config.yaml -in logs.jsonl
package main

import (
	"bufio"
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"referralstats/internal/app"
	"referralstats/internal/config"
	"referralstats/internal/service"
)

func main() {
	var (
		cfgPath   = flag.String("config", os.Getenv("CONFIG"), "path to the aggregator config; defaults apply when empty")
		in        = flag.String("in", "-", "JSONL file with log envelopes, - for stdin")
		keepGoing = flag.Bool("keep-going", false, "log a failing line and continue instead of stopping")
	)
	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			log.Fatalf("Failed load config, error=%v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, dec, lg, cleanup, err := app.BuildService(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed build service, error=%v", err)
	}
	defer cleanup()

	var r io.Reader = os.Stdin
	if *in != "-" {
		f, err := os.Open(*in)
		if err != nil {
			lg.Errorf("Failed open %s: %v", *in, err)
			return
		}
		defer f.Close()
		r = f
	}

	start := time.Now()
	var total service.IngestResult

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), 64<<20)
	line := 0
	for sc.Scan() {
		line++
		if ctx.Err() != nil {
			lg.Warnf("Replay interrupted at line %d", line)
			break
		}
		if len(sc.Bytes()) == 0 {
			continue
		}

		res, err := svc.HandleMessage(ctx, dec, "replay", sc.Bytes())
		total.Applied += res.Applied
		total.Skipped += res.Skipped
		total.Ignored += res.Ignored
		if err != nil {
			lg.Errorf("Replay failed at line %d: %v", line, err)
			if !*keepGoing {
				break
			}
		}
	}
	if err = sc.Err(); err != nil {
		lg.Errorf("Failed read input: %v", err)
	}

	lg.WithFields(map[string]interface{}{
		"lines":   line,
		"applied": total.Applied,
		"skipped": total.Skipped,
		"ignored": total.Ignored,
		"took_ms": time.Since(start).Milliseconds(),
	}).Info("replay finished")
}
