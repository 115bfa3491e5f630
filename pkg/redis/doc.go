// Package redis carries watchqueue notifications over Redis pub/sub.
//
// Sink implements watchqueue.Sink: every record delivered to a queue is
// published, encoded, on the channel "<channel>:<queue id>". Subscribers
// decode messages with notification.Unmarshal. The package also keeps the
// connection helpers the sink needs: Connect with retry and a Healthcheck
// probe.
//
// Configuration is read from the environment with github.com/caarlos0/env.
//
// # Usage
//
//	cfg, err := redis.LoadConfig()
//	if err != nil {
//	    return err
//	}
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	q, err := manager.NewQueue(64, watchqueue.WithSink(redis.NewSink(client, cfg)))
//
// # Errors
//
// Sentinel errors such as ErrRedisNotReady wrap go-redis errors with
// errors.Join, so both can be matched with errors.Is.
package redis
