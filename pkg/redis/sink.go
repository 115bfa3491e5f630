package redis

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/watchqueue/pkg/logger"
	"github.com/dmitrymomot/watchqueue/pkg/notification"
	"github.com/dmitrymomot/watchqueue/pkg/watchqueue"
)

// Publisher is the part of a go-redis client the sink needs.
// *redis.Client, *redis.ClusterClient and redis.UniversalClient satisfy it.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Sink publishes every note of one queue to the pub/sub channel
// "<Config.Channel>:<queue id>" as the encoded record.
//
// Publish copies the note and frees the slot at once; a background goroutine
// talks to Redis. When the buffer is full Publish returns
// watchqueue.ErrNoCapacity and the queue counts the record as lost. A note
// that follows a loss is preceded on the channel by an encoded loss record.
//
// Use one Sink per queue: the queue closes it.
type Sink struct {
	pub    Publisher
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	msgs   chan message
	done   chan struct{}

	published atomic.Uint64
	failed    atomic.Uint64
}

type message struct {
	channel string
	payload []byte
	loss    bool
}

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithSinkLogger sets the logger used for publish failures.
func WithSinkLogger(l *slog.Logger) SinkOption {
	return func(s *Sink) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSink starts a sink publishing through pub.
func NewSink(pub Publisher, cfg Config, opts ...SinkOption) *Sink {
	if cfg.Channel == "" {
		cfg.Channel = "watchqueue"
	}
	s := &Sink{
		pub:    pub,
		cfg:    cfg,
		logger: slog.Default(),
		msgs:   make(chan message, max(cfg.SinkBuffer, 1)),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("redis-sink"))
	go s.run()
	return s
}

// Publish implements watchqueue.Sink.
func (s *Sink) Publish(n watchqueue.Note) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return watchqueue.ErrQueueClosed
	}
	msg := message{
		channel: s.cfg.Channel + ":" + n.QueueID(),
		payload: append([]byte(nil), n.Bytes()...),
		loss:    n.Loss(),
	}
	select {
	case s.msgs <- msg:
		n.Release()
		return nil
	default:
		return watchqueue.ErrNoCapacity
	}
}

// Close stops accepting notes and waits until the buffered ones are sent.
func (s *Sink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.msgs)
	}
	s.mu.Unlock()

	<-s.done
	return nil
}

// Published returns the number of successful PUBLISH calls.
func (s *Sink) Published() uint64 { return s.published.Load() }

// Failed returns the number of PUBLISH calls that returned an error.
func (s *Sink) Failed() uint64 { return s.failed.Load() }

func (s *Sink) run() {
	defer close(s.done)

	loss := notification.NewLoss().Marshal()
	for msg := range s.msgs {
		if msg.loss {
			s.send(msg.channel, loss)
		}
		s.send(msg.channel, msg.payload)
	}
}

func (s *Sink) send(channel string, payload []byte) {
	ctx := context.Background()
	if s.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PublishTimeout)
		defer cancel()
	}

	if err := s.pub.Publish(ctx, channel, payload).Err(); err != nil {
		s.failed.Add(1)
		s.logger.Warn("publish failed", logger.Channel(channel), logger.Error(err))
		return
	}
	s.published.Add(1)
}

var _ watchqueue.Sink = (*Sink)(nil)
