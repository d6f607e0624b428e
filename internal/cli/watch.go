package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/settle/pkg/acquisition"
	"github.com/aretw0/settle/pkg/adapters/kafka"
	"github.com/aretw0/settle/pkg/adapters/mqtt"
	"github.com/aretw0/settle/pkg/adapters/redis"
	"github.com/aretw0/settle/pkg/config"
	"github.com/aretw0/settle/pkg/domain"
	"github.com/aretw0/settle/pkg/ports"
	paho "github.com/eclipse/paho.mqtt.golang"
	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const connectTimeout = 10 * time.Second

type watchOptions struct {
	count int
}

// watchReading is the line printed for every settled acquisition.
type watchReading struct {
	Engine    string          `json:"engine"`
	Session   string          `json:"session"`
	Counter   int64           `json:"counter"`
	Timestamp time.Time       `json:"timestamp"`
	Elapsed   string          `json:"elapsed"`
	Resets    int             `json:"resets"`
	Payload   json.RawMessage `json:"payload"`
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Acquire from a detector published on Redis or MQTT",
		Long: `Watch a real detector whose ready, counter and payload values are published on
Redis (source.kind: redis) or MQTT (source.kind: mqtt). Each settled payload is
printed as one JSON line.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(rootOpts, opts, cmd)
		},
	}
	cmd.Flags().IntVarP(&opts.count, "count", "n", 1, "acquisition attempts to run, timed-out ones included; 0 runs until interrupted")
	return cmd
}

func runWatch(rootOpts *RootOptions, opts *watchOptions, cmd *cobra.Command) error {
	cfg, logger, err := rootOpts.load(cmd)
	if err != nil {
		return err
	}
	policy, err := acquisition.ParseCounterPolicy(cfg.Acquisition.CounterPolicy)
	if err != nil {
		return err
	}

	engineOpts := []acquisition.Option{
		acquisition.WithName(cfg.Acquisition.Name),
		acquisition.WithLogger(logger),
		acquisition.WithCounterPolicy(policy),
	}
	var src *source
	switch cfg.Source.Kind {
	case config.SourceRedis:
		src, err = redisSource(cfg.Source, logger)
	case config.SourceMQTT:
		src, err = mqttSource(cfg.Source, logger)
	default:
		return fmt.Errorf("watch needs a redis or mqtt source, got %q", cfg.Source.Kind)
	}
	if err != nil {
		return err
	}
	defer src.close()
	if src.locker != nil {
		engineOpts = append(engineOpts, acquisition.WithLocker(src.locker))
	}

	engine, err := acquisition.New(src.signals, engineOpts...)
	if err != nil {
		return err
	}

	var sink *kafka.Sink
	if cfg.Sink.Enabled() {
		if sink, err = kafka.NewSink(cfg.Sink.Brokers, cfg.Sink.Topic, kafka.WithLogger(logger)); err != nil {
			return err
		}
		defer func() {
			if err := sink.Close(); err != nil {
				logger.Warn("closing kafka sink", "err", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(cmd.OutOrStdout())
	for i := 0; opts.count == 0 || i < opts.count; i++ {
		reading, err := engine.Acquire(ctx, cfg.Acquisition.Timeout, cfg.Acquisition.Validation)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if domain.IsTimeout(err) {
				logger.Warn("acquisition timed out, watching again", "engine", engine.Name(), "err", err)
				continue
			}
			return err
		}
		line := watchReading{
			Engine:    engine.Name(),
			Session:   reading.SessionID,
			Counter:   reading.Counter,
			Timestamp: reading.Timestamp,
			Elapsed:   reading.Elapsed.String(),
			Resets:    reading.WindowResets,
			Payload:   reading.Payload,
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
		if sink != nil {
			if err := sink.Publish(ctx, line.Engine, line); err != nil {
				logger.Error("forwarding reading failed", "session", line.Session, "err", err)
			}
		}
	}
	return nil
}

// source is a detector reachable over a broker.
type source struct {
	signals acquisition.Signals[json.RawMessage]
	locker  ports.Locker
	close   func()
}

func redisSource(cfg config.SourceConfig, logger *slog.Logger) (*source, error) {
	client := backend.NewClient(&backend.Options{Addr: cfg.Redis.Addr})
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
	}

	opts := []redis.Option{redis.WithLogger(logger)}
	if cfg.Redis.Prefix != "" {
		opts = append(opts, redis.WithPrefix(cfg.Redis.Prefix))
	}
	src := &source{
		signals: acquisition.Signals[json.RawMessage]{
			Ready:   redis.NewSignal[bool](client, cfg.Ready, opts...),
			Counter: redis.NewSignal[int64](client, cfg.Counter, opts...),
			Payload: redis.NewSignal[json.RawMessage](client, cfg.Payload, opts...),
		},
		close: func() {
			if err := client.Close(); err != nil {
				logger.Warn("closing redis client", "err", err)
			}
		},
	}
	if cfg.Lease {
		src.locker = redis.NewLocker(client, cfg.Redis.Prefix)
	}
	return src, nil
}

func mqttSource(cfg config.SourceConfig, logger *slog.Logger) (*source, error) {
	clientOpts := paho.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(cfg.MQTT.ClientID).
		SetAutoReconnect(true)
	client := paho.NewClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("failed to reach mqtt broker %s: timed out", cfg.MQTT.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to reach mqtt broker %s: %w", cfg.MQTT.Broker, err)
	}

	var closers []func(context.Context) error
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		for _, c := range closers {
			if err := c(ctx); err != nil {
				logger.Warn("closing mqtt signal", "err", err)
			}
		}
		client.Disconnect(250)
	}

	opts := func(name string) []mqtt.Option {
		return []mqtt.Option{mqtt.WithName(name), mqtt.WithQoS(cfg.MQTT.QoS), mqtt.WithLogger(logger)}
	}
	topic := func(name string) string { return cfg.MQTT.TopicPrefix + name }

	ready, err := mqtt.NewSignal[bool](client, topic(cfg.Ready), opts(cfg.Ready)...)
	if err != nil {
		cleanup()
		return nil, err
	}
	closers = append(closers, ready.Close)
	counter, err := mqtt.NewSignal[int64](client, topic(cfg.Counter), opts(cfg.Counter)...)
	if err != nil {
		cleanup()
		return nil, err
	}
	closers = append(closers, counter.Close)
	payload, err := mqtt.NewSignal[json.RawMessage](client, topic(cfg.Payload), opts(cfg.Payload)...)
	if err != nil {
		cleanup()
		return nil, err
	}
	closers = append(closers, payload.Close)

	return &source{
		signals: acquisition.Signals[json.RawMessage]{Ready: ready, Counter: counter, Payload: payload},
		close:   cleanup,
	}, nil
}
