// Package pipeline wires a news event through market lookup, gated
// evaluation, and deduplicated delivery.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rewired-gh/polyedge/internal/dedup"
	"github.com/rewired-gh/polyedge/internal/gate"
	"github.com/rewired-gh/polyedge/internal/logger"
	"github.com/rewired-gh/polyedge/internal/models"
)

// MarketSource returns the current market snapshot; it never fails.
type MarketSource interface {
	Get(ctx context.Context, limit int) []models.Market
}

// Evaluator produces above-threshold opportunities for one news event.
type Evaluator interface {
	Evaluate(ctx context.Context, news models.NewsEvent, markets []models.Market) []models.Opportunity
}

// Sink delivers opportunities to the user.
type Sink interface {
	Deliver(ctx context.Context, opp models.Opportunity) DeliveryResult
}

// DeliveryResult reports a best-effort delivery. A failed delivery still
// consumes the dedup window: alerts are at most once per window, not exactly once.
type DeliveryResult struct {
	Err error
}

// OK reports whether the sink accepted the message.
func (r DeliveryResult) OK() bool { return r.Err == nil }

// LogSink logs opportunities instead of sending them.
type LogSink struct{}

func (LogSink) Deliver(_ context.Context, opp models.Opportunity) DeliveryResult {
	logger.Info("[dry run] %s %s @ %.3f -> %.3f (edge %+.1f%%): %s",
		opp.Direction, opp.Market.Question, opp.CurrentPrice, opp.TrueProb, opp.Edge*100, opp.Reasoning)
	return DeliveryResult{}
}

// Report summarises the processing of one or more news events.
type Report struct {
	Events     int
	Markets    int
	Candidates int
	Delivered  int
	Failed     int
	Suppressed int
}

func (r *Report) add(o Report) {
	r.Events += o.Events
	r.Markets += o.Markets
	r.Candidates += o.Candidates
	r.Delivered += o.Delivered
	r.Failed += o.Failed
	r.Suppressed += o.Suppressed
}

type Options struct {
	// Limit is the number of markets requested from the market source.
	Limit int
	// Pause is the minimum spacing between events in backfill mode.
	Pause time.Duration
}

// Orchestrator owns the shared state of the pipeline. It is safe for concurrent use.
type Orchestrator struct {
	markets   MarketSource
	gate      *gate.Gate
	evaluator Evaluator
	dedup     *dedup.Store
	sink      Sink
	opts      Options
}

func New(markets MarketSource, g *gate.Gate, ev Evaluator, d *dedup.Store, sink Sink, opts Options) *Orchestrator {
	if opts.Limit < 1 {
		opts.Limit = 100
	}
	return &Orchestrator{
		markets:   markets,
		gate:      g,
		evaluator: ev,
		dedup:     d,
		sink:      sink,
		opts:      opts,
	}
}

// Process runs one news event through the pipeline.
func (o *Orchestrator) Process(ctx context.Context, news models.NewsEvent) Report {
	report := Report{Events: 1}
	logger.Info("Processing news %s from %s: %s", news.ID, news.Channel, news.Preview(60))

	markets := o.markets.Get(ctx, o.opts.Limit)
	report.Markets = len(markets)
	if len(markets) == 0 {
		logger.Warn("No markets loaded, skipping analysis of news %s", news.ID)
		return report
	}

	opportunities, err := gate.WithSlot(ctx, o.gate, func(ctx context.Context) []models.Opportunity {
		return o.evaluator.Evaluate(ctx, news, markets)
	})
	if err != nil {
		logger.Warn("Gave up waiting for an oracle slot for news %s: %v", news.ID, err)
		return report
	}
	report.Candidates = len(opportunities)
	if len(opportunities) == 0 {
		logger.Info("No opportunity found for news %s", news.ID)
		return report
	}

	for _, opp := range opportunities {
		key := opp.Key()
		if !o.dedup.Claim(key) {
			report.Suppressed++
			logger.Info("Duplicate suppressed (already sent within window): %s %s",
				opp.Direction, models.Truncate(opp.Market.Question, 50))
			continue
		}

		logger.Info("Opportunity: %s on '%s' | edge=%+.1f%%",
			opp.Direction, models.Truncate(opp.Market.Question, 60), opp.Edge*100)
		res := o.sink.Deliver(ctx, opp)
		o.dedup.Complete(key)

		if res.OK() {
			report.Delivered++
		} else {
			report.Failed++
			logger.Error("Failed to deliver opportunity for market %s: %v", opp.Market.ID, res.Err)
		}
	}

	return report
}

// RunLive processes every event from events concurrently until events is
// closed or ctx ends, then waits for in-flight events to finish.
func (o *Orchestrator) RunLive(ctx context.Context, events <-chan models.NewsEvent) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case news, ok := <-events:
			if !ok {
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				o.Process(ctx, news)
			}()
		}
	}
}

// RunBackfill processes events one at a time, waiting the configured pause
// after each event finishes. It stops early, with the partial report, if ctx ends.
func (o *Orchestrator) RunBackfill(ctx context.Context, events []models.NewsEvent) (Report, error) {
	var total Report

	for i, news := range events {
		if i > 0 {
			if err := sleepCtx(ctx, o.opts.Pause); err != nil {
				return total, err
			}
		}
		logger.Debug("Backfill event %d/%d", i+1, len(events))
		total.add(o.Process(ctx, news))
	}

	logger.Info("Backfill complete: %d events, %d candidates, %d delivered, %d suppressed, %d failed",
		total.Events, total.Candidates, total.Delivered, total.Suppressed, total.Failed)
	return total, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
