package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/watchqueue/pkg/filter"
	"github.com/dmitrymomot/watchqueue/pkg/logger"
	"github.com/dmitrymomot/watchqueue/pkg/notification"
	"github.com/dmitrymomot/watchqueue/pkg/redis"
	"github.com/dmitrymomot/watchqueue/pkg/watchqueue"
)

const (
	producersKey = "producers"
	watchesKey   = "watches"
	capacityKey  = "capacity"
	postsKey     = "posts"
	payloadKey   = "payload"
	filterKey    = "filter"
	logLevelKey  = "log-level"
	redisURLKey  = "redis-url"
)

func main() {
	cmd := &cli.Command{
		Name:  "watchqueue-bench",
		Usage: "Post notifications from N producers to M watching queues and report latency and loss",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  producersKey,
				Usage: "Number of concurrent producers",
				Value: 4,
			},
			&cli.UintFlag{
				Name:  watchesKey,
				Usage: "Number of queues watching the resource",
				Value: 8,
			},
			&cli.UintFlag{
				Name:  capacityKey,
				Usage: "Slots per queue, rounded up to a power of two",
				Value: 256,
			},
			&cli.UintFlag{
				Name:  postsKey,
				Usage: "Posts per producer",
				Value: 100_000,
			},
			&cli.UintFlag{
				Name:  payloadKey,
				Usage: "Payload size in bytes",
				Value: 16,
			},
			&cli.StringFlag{
				Name:  filterKey,
				Usage: "Path to a YAML filter spec; accept everything when empty",
			},
			&cli.StringFlag{
				Name:  logLevelKey,
				Usage: "Log level: debug, info, warn, error",
				Value: "warn",
			},
			&cli.StringFlag{
				Name:  redisURLKey,
				Usage: "Publish notes to Redis instead of reading them in process",
			},
		},
		Action: bench,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

type consumer struct {
	q       *watchqueue.Queue
	records atomic.Uint64
	losses  atomic.Uint64
	removed atomic.Bool
}

func bench(ctx context.Context, cmd *cli.Command) error {
	producers := int(cmd.Uint(producersKey))
	watches := int(cmd.Uint(watchesKey))
	capacity := int(cmd.Uint(capacityKey))
	posts := int(cmd.Uint(postsKey))
	payload := make([]byte, min(int(cmd.Uint(payloadKey)), notification.MaxPayload))

	lg := logger.New(
		logger.WithLevel(logger.ParseLevel(cmd.String(logLevelKey))),
		logger.WithFormat(logger.FormatText),
		logger.WithOutput(os.Stderr),
	)

	cfg, err := watchqueue.LoadConfig()
	if err != nil {
		return err
	}
	cfg.Enabled = true
	cfg.MaxNotes = max(cfg.MaxNotes, capacity)

	spec := filter.AcceptAll()
	if path := cmd.String(filterKey); path != "" {
		if spec, err = filter.LoadFile(path); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	m := watchqueue.New(cfg, watchqueue.WithLogger(lg), watchqueue.WithMetrics(watchqueue.NewMetrics(reg)))
	defer m.Close()

	var sinks []*redis.Sink
	newSink := func() []watchqueue.QueueOption { return nil }
	if url := cmd.String(redisURLKey); url != "" {
		rcfg := redis.Config{
			ConnectionURL:  url,
			RetryAttempts:  3,
			RetryInterval:  time.Second,
			ConnectTimeout: 10 * time.Second,
			Channel:        "watchqueue-bench",
			SinkBuffer:     capacity,
			PublishTimeout: 2 * time.Second,
		}
		client, err := redis.Connect(ctx, rcfg)
		if err != nil {
			return err
		}
		defer client.Close()
		if err := redis.Healthcheck(client)(ctx); err != nil {
			return err
		}
		newSink = func() []watchqueue.QueueOption {
			s := redis.NewSink(client, rcfg, redis.WithSinkLogger(lg))
			sinks = append(sinks, s)
			return []watchqueue.QueueOption{watchqueue.WithSink(s)}
		}
	}

	list, err := m.NewWatchList(nil)
	if err != nil {
		return err
	}

	consumers := make([]*consumer, 0, watches)
	for i := range watches {
		q, err := m.NewQueue(capacity, newSink()...)
		if err != nil {
			return err
		}
		if err := q.SetFilter(nil, &spec); err != nil {
			return err
		}
		if _, err := m.AddWatch(q, list, uint8(i), nil, nil); err != nil {
			return err
		}
		consumers = append(consumers, &consumer{q: q})
	}

	var readers errgroup.Group
	if len(sinks) == 0 {
		for _, c := range consumers {
			readers.Go(func() error { return c.drain(ctx) })
		}
	}

	tach := tachymeter.New(&tachymeter.Config{Size: min(producers*posts, 1_000_000)})
	start := time.Now()

	var g errgroup.Group
	for p := range producers {
		g.Go(func() error {
			for j := range posts {
				rec, err := notification.New(notification.TypeKey, uint8(j), uint16(p), payload)
				if err != nil {
					return err
				}
				t := time.Now()
				list.Post(rec, nil, 0)
				tach.AddTime(time.Since(t))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	list.Destroy()
	var dropped uint64
	for _, c := range consumers {
		dropped += c.q.Dropped()
		if err := c.q.Close(); err != nil {
			return err
		}
	}
	if err := readers.Wait(); err != nil {
		return err
	}
	m.Flush()

	render(renderInput{
		producers: producers,
		watches:   watches,
		capacity:  consumers[0].q.Capacity(),
		posts:     producers * posts,
		elapsed:   elapsed,
		dropped:   dropped,
		consumers: consumers,
		sinks:     sinks,
		calc:      tach.Calc(),
		reg:       reg,
	})
	return nil
}

func (c *consumer) drain(ctx context.Context) error {
	for {
		rec, err := c.q.Read(ctx)
		switch {
		case errors.Is(err, watchqueue.ErrQueueClosed):
			return nil
		case err != nil:
			return err
		case rec.IsLoss():
			c.losses.Add(1)
		case rec.IsRemoval():
			c.removed.Store(true)
		default:
			c.records.Add(1)
		}
	}
}

type renderInput struct {
	producers, watches, capacity, posts int
	elapsed                             time.Duration
	dropped                             uint64
	consumers                           []*consumer
	sinks                               []*redis.Sink
	calc                                *tachymeter.Metrics
	reg                                 *prometheus.Registry
}

func render(in renderInput) {
	var records, losses, removals, published, failed uint64
	for _, c := range in.consumers {
		records += c.records.Load()
		losses += c.losses.Load()
		if c.removed.Load() {
			removals++
		}
	}
	for _, s := range in.sinks {
		published += s.Published()
		failed += s.Failed()
	}

	rate := float64(in.posts) / in.elapsed.Seconds()

	tbl := table.NewWriter()
	tbl.SetTitle("watchqueue")
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"metric", "value"})
	tbl.AppendRows([]table.Row{
		{"producers x watches", fmt.Sprintf("%d x %d", in.producers, in.watches)},
		{"slots per queue", in.capacity},
		{"slot storage", humanize.IBytes(uint64(in.capacity * in.watches * watchqueue.SlotSize))},
		{"posts", humanize.Comma(int64(in.posts))},
		{"elapsed", in.elapsed.Round(time.Millisecond)},
		{"posts/s", humanize.Comma(int64(rate))},
		{"dropped", humanize.Comma(int64(in.dropped))},
	})
	if len(in.sinks) == 0 {
		tbl.AppendRows([]table.Row{
			{"records read", humanize.Comma(int64(records))},
			{"loss records read", humanize.Comma(int64(losses))},
			{"removal records read", removals},
		})
	} else {
		tbl.AppendRows([]table.Row{
			{"redis published", humanize.Comma(int64(published))},
			{"redis failed", humanize.Comma(int64(failed))},
		})
	}
	tbl.AppendSeparator()
	tbl.AppendRows([]table.Row{
		{"post avg", in.calc.Time.Avg},
		{"post min", in.calc.Time.Min},
		{"post p75", in.calc.Time.P75},
		{"post p99", in.calc.Time.P99},
		{"post max", in.calc.Time.Max},
	})
	tbl.Render()

	families, err := in.reg.Gather()
	if err != nil {
		slog.Error("gather metrics", logger.Error(err))
		return
	}
	mt := table.NewWriter()
	mt.SetTitle("metrics")
	mt.SetOutputMirror(os.Stdout)
	mt.AppendHeader(table.Row{"name", "value"})
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			v := metric.GetCounter().GetValue()
			if g := metric.GetGauge(); g != nil {
				v = g.GetValue()
			}
			mt.AppendRow(table.Row{mf.GetName(), humanize.Comma(int64(v))})
		}
	}
	mt.Render()
}
