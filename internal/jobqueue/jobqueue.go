// Package jobqueue submits ingestion jobs over Kafka and streams their
// progress events over Redis pub/sub, grounded on
// internal/orchestrator/kafka.go's reader/worker-pool consumer shape and
// internal/workspaces/redis_cache.go's Publish/Subscribe pattern.
package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"knowledgetree/internal/config"
	"knowledgetree/internal/ingest"
)

// JobMessage is the wire format of one queued ingestion job, mirroring
// internal/tools/kafka's CommandEnvelope shape (a correlation id plus a
// flat attrs-style payload) generalized to this domain's Job type.
type JobMessage struct {
	CorrelationID string       `json:"correlation_id"`
	Job           ingest.Job   `json:"job"`
}

// Producer submits jobs onto the Kafka jobs topic.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer builds a Producer. Returns nil when cfg.Enabled is false,
// matching the teacher's NewRedisGenerationCache nil-when-disabled
// convention so callers can treat an absent queue as "process jobs
// inline" without a type switch.
func NewProducer(cfg config.KafkaConfig) *Producer {
	if !cfg.Enabled {
		return nil
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.JobsTopic,
			Balancer: &kafka.LeastBytes{},
		},
		topic: cfg.JobsTopic,
	}
}

// Submit enqueues job under correlationID, the key progress subscribers
// use to find their event stream.
func (p *Producer) Submit(ctx context.Context, correlationID string, job ingest.Job) error {
	payload, err := json.Marshal(JobMessage{CorrelationID: correlationID, Job: job})
	if err != nil {
		return fmt.Errorf("jobqueue: marshal job: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(correlationID),
		Value: payload,
	})
}

func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}

// Runner is the collaborator that actually executes a job, satisfied by
// *ingest.Coordinator.
type Runner interface {
	Run(ctx context.Context, job ingest.Job, progress ingest.ProgressFunc) (int64, error)
}

// Consumer drains the Kafka jobs topic with a bounded worker pool,
// publishing progress to Redis as each job runs. Structurally this is
// internal/orchestrator's StartKafkaConsumer generalized from a single
// command-handler callback to ingest.Coordinator.Run, with progress
// events (absent from the orchestrator's fire-and-forget commands)
// added via the Redis publisher.
type Consumer struct {
	reader      *kafka.Reader
	runner      Runner
	progress    *ProgressBus
	workerCount int
}

// NewConsumer builds a Consumer. Returns nil when cfg.Enabled is false.
func NewConsumer(cfg config.KafkaConfig, runner Runner, progress *ProgressBus) *Consumer {
	if !cfg.Enabled {
		return nil
	}
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			GroupID:  cfg.GroupID,
			Topic:    cfg.JobsTopic,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		runner:      runner,
		progress:    progress,
		workerCount: cfg.WorkerCount,
	}
}

// Run drains messages until ctx is canceled, dispatching each decoded
// job to a worker-pool goroutine, exactly mirroring
// StartKafkaConsumer's jobs-channel fan-out.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	jobs := make(chan kafka.Message, c.workerCount*4)
	var wg sync.WaitGroup
	wg.Add(c.workerCount)
	for i := 0; i < c.workerCount; i++ {
		go func() {
			defer wg.Done()
			for msg := range jobs {
				c.handle(ctx, msg)
			}
		}()
	}

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			close(jobs)
			wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("jobqueue: fetch message: %w", err)
		}
		jobs <- msg
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("jobqueue: commit offset failed")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	var jm JobMessage
	if err := json.Unmarshal(msg.Value, &jm); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("jobqueue: decode job message")
		return
	}

	var progressFn ingest.ProgressFunc
	if c.progress != nil {
		progressFn = func(p ingest.Progress) {
			if err := c.progress.Publish(ctx, jm.CorrelationID, p); err != nil {
				log.Ctx(ctx).Warn().Err(err).Msg("jobqueue: publish progress failed")
			}
		}
	}

	if _, err := c.runner.Run(ctx, jm.Job, progressFn); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("correlation_id", jm.CorrelationID).Msg("jobqueue: job failed")
	}
}

// ProgressBus publishes/subscribes ingest.Progress events over Redis
// pub/sub, one channel per correlation id.
type ProgressBus struct {
	client redis.UniversalClient
}

// NewProgressBus builds a ProgressBus. Returns nil when cfg.Enabled is
// false.
func NewProgressBus(cfg config.RedisConfig) (*ProgressBus, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("jobqueue: redis ping: %w", err)
	}
	return &ProgressBus{client: client}, nil
}

func (b *ProgressBus) channel(correlationID string) string {
	return "ingest:progress:" + correlationID
}

// Publish sends p on correlationID's channel.
func (b *ProgressBus) Publish(ctx context.Context, correlationID string, p ingest.Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel(correlationID), data).Err()
}

// Subscribe returns a channel of Progress events for correlationID and a
// cancel function the caller must invoke to release the subscription.
func (b *ProgressBus) Subscribe(ctx context.Context, correlationID string) (<-chan ingest.Progress, func()) {
	out := make(chan ingest.Progress, 8)
	sub := b.client.Subscribe(ctx, b.channel(correlationID))
	go func() {
		for msg := range sub.Channel() {
			var p ingest.Progress
			if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
				log.Ctx(ctx).Warn().Err(err).Msg("jobqueue: decode progress event")
				continue
			}
			select {
			case out <- p:
			case <-ctx.Done():
				return
			default:
			}
		}
	}()
	cancel := func() {
		_ = sub.Close()
		close(out)
	}
	return out, cancel
}

// WaitTerminal blocks until a progress event with Percent >= 100 arrives,
// or ctx is canceled or timeout elapses, whichever comes first; the
// event's Stage is not inspected. Useful for synchronous callers (e.g. tests, CLI tools) layered
// over the otherwise-async progress stream.
func (b *ProgressBus) WaitTerminal(ctx context.Context, correlationID string, timeout time.Duration) (ingest.Progress, error) {
	subCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	events, stop := b.Subscribe(subCtx, correlationID)
	defer stop()
	for {
		select {
		case p, ok := <-events:
			if !ok {
				return ingest.Progress{}, fmt.Errorf("jobqueue: progress stream closed before completion")
			}
			if p.Percent >= 100 {
				return p, nil
			}
		case <-subCtx.Done():
			return ingest.Progress{}, subCtx.Err()
		}
	}
}
