package ingest

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"golang.org/x/sync/errgroup"

	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/domain"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
	commitTimeout  = 5 * time.Second
)

// BatchExtractor reads up to batchSize raw events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// MessageHandler ingests a single payload delivered on topic.
type MessageHandler interface {
	OnMessage(ctx context.Context, topic string, payload []byte) Result
}

// Pipeline drives the consume loop: extract a batch, ingest it across
// workers with per-station ordering, and commit offsets.
type Pipeline struct {
	extractor BatchExtractor
	handler   MessageHandler
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
	batchSize int
	workers   int
}

// NewPipeline creates a Pipeline. workers below 1 is treated as 1.
func NewPipeline(e BatchExtractor, h MessageHandler, logger *slog.Logger, metrics *observability.Metrics, batchSize, workers int) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		extractor: e,
		handler:   h,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
		workers:   workers,
	}
}

// CheckReadiness returns nil once the pipeline has processed at least one
// message.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not processed any messages yet")
	}
	return nil
}

// Run executes the consume loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize, "workers", p.workers)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff) {
			return nil
		}
	}
}

// processBatch runs one extract-ingest-commit cycle. Returns false if the
// pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration) bool {
	start := time.Now()

	batch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff)
	}
	if len(batch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.MessagesConsumed.Add(float64(len(batch)))
	p.metrics.BatchSize.Observe(float64(len(batch)))
	*backoff = initialBackoff

	done := p.ingestBatch(ctx, batch)
	committed := p.commitProcessed(ctx, batch, done)

	if committed > 0 {
		p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
		p.ready.Store(true)
	}
	return ctx.Err() == nil
}

// ingestBatch shards the batch by station key and ingests each shard in
// order on its own goroutine. done[i] reports whether batch[i] reached a
// terminal outcome and may be committed.
func (p *Pipeline) ingestBatch(ctx context.Context, batch []domain.RawEvent) []bool {
	shards := make([][]int, p.workers)
	for i, raw := range batch {
		w := shardFor(raw, p.workers)
		shards[w] = append(shards[w], i)
	}

	done := make([]bool, len(batch))
	var g errgroup.Group
	for _, idx := range shards {
		if len(idx) == 0 {
			continue
		}
		g.Go(func() error {
			for _, i := range idx {
				if !p.ingestWithRetry(ctx, batch[i]) {
					return nil
				}
				done[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()
	return done
}

// ingestWithRetry handles one message, retrying storage failures with
// exponential backoff. Returns false only if the context ended first.
func (p *Pipeline) ingestWithRetry(ctx context.Context, raw domain.RawEvent) bool {
	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		res := p.handle(ctx, raw)
		if !res.Kind.Retryable() {
			return true
		}
		p.logger.Warn("ingest failed with storage error, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"device_id", res.DeviceID,
			"topic", raw.Topic,
			"partition", raw.Partition,
			"offset", raw.Offset,
		)
		if !retry.SleepWithContext(ctx, backoff) {
			return false
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
}

// handle invokes the handler, converting a panic into a validation failure so
// one poisoned message cannot take down the process.
func (p *Pipeline) handle(ctx context.Context, raw domain.RawEvent) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic while ingesting message",
				"panic", r, "topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
			res = failed(domain.FailureValidation, domain.PeekDeviceID(raw.Value), fmt.Sprintf("panic: %v", r))
		}
	}()
	return p.handler.OnMessage(ctx, raw.Topic, raw.Value)
}

// commitProcessed commits finished messages in batch order. Within a
// partition, committing stops at the first unfinished message so its offset
// is redelivered.
func (p *Pipeline) commitProcessed(ctx context.Context, batch []domain.RawEvent, done []bool) int {
	type partitionKey struct {
		topic     string
		partition int
	}
	blocked := make(map[partitionKey]bool)
	committed := 0
	for i, raw := range batch {
		key := partitionKey{raw.Topic, raw.Partition}
		if blocked[key] {
			continue
		}
		if !done[i] {
			blocked[key] = true
			continue
		}
		p.commitOffset(ctx, raw)
		committed++
	}
	return committed
}

// backoffOrStop sleeps with the current backoff and advances it. Returns
// false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !retry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = retry.NextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
// The commit outlives cancellation of ctx so messages ingested before a
// shutdown are not redelivered.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

// shardFor maps a message to a worker by device id so every envelope from
// one station is handled by the same worker, in offset order. The message
// key is only used when the payload carries no device id.
func shardFor(raw domain.RawEvent, workers int) int {
	key := []byte(domain.PeekDeviceID(raw.Value))
	if len(key) == 0 {
		key = raw.Key
	}
	h := fnv.New32a()
	_, _ = h.Write(key)
	return int(h.Sum32() % uint32(workers))
}
