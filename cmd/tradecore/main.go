// Command tradecore runs a live exchange session: it connects, waits for
// readiness, and opens the configured market data and report streams.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/quantfeed/tradecore/internal/adapters/hitbtc"
	"github.com/quantfeed/tradecore/internal/config"
	"github.com/quantfeed/tradecore/internal/observability"
	"github.com/quantfeed/tradecore/internal/session"
)

const defaultConfigPath = "config/tradecore.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		observability.SetLogger(observability.NewZerologLogger(os.Stderr, "info"))
		observability.Log().Error("load config", observability.F("error", err.Error()))
		os.Exit(1)
	}

	var out io.Writer = os.Stderr
	if cfg.Logging.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	observability.SetLogger(observability.NewZerologLogger(out, cfg.Logging.Level))
	observability.SetMetrics(observability.NewOTelMetrics("tradecore"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mapper := hitbtc.NewMapper()
	sess := session.New(cfg.SessionConfig(), mapper, hitbtc.NewCommands(), nil)

	sess.Ready().Subscribe(func(struct{}) {
		if err := sess.SubscribeReports(); err != nil {
			observability.Log().Error("subscribe reports", observability.F("error", err.Error()))
		}
		for _, m := range cfg.Markets {
			pair, intervals := m.Market()
			if err := sess.SubscribeOrderbook(pair); err != nil {
				observability.Log().Error("subscribe orderbook",
					observability.F("pair", pair),
					observability.F("error", err.Error()),
				)
			}
			for _, interval := range intervals {
				if err := sess.SubscribeCandles(pair, interval); err != nil {
					observability.Log().Error("subscribe candles",
						observability.F("pair", pair),
						observability.F("interval", interval.Code),
						observability.F("error", err.Error()),
					)
				}
			}
		}
	})

	if err := sess.Connect(ctx); err != nil {
		observability.Log().Error("connect", observability.F("error", err.Error()))
		os.Exit(1)
	}
	observability.Log().Info("session starting",
		observability.F("exchange", cfg.Exchange.Name),
		observability.F("markets", len(cfg.Markets)),
	)

	<-ctx.Done()
	observability.Log().Info("shutting down")
	sess.Close()
}
