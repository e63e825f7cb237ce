package consumer

import (
	"context"

	"github.com/segmentio/kafka-go"
	"github.com/smallbiznis/chargeback/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("consumer",
	fx.Provide(DefaultConfig),
	fx.Provide(NewConsumer),
	fx.Invoke(runConsumer),
)

// closingReader is a Reader owned by the lifecycle; *kafka.Reader satisfies it.
type closingReader interface {
	Reader
	Close() error
}

func runConsumer(lc fx.Lifecycle, cfg config.Config, consumer *Consumer, log *zap.Logger) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka consumer disabled, no brokers configured")
		return
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.Topic,
		GroupID:  cfg.Kafka.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	attachReader(lc, consumer, reader, log)
}

// attachReader runs consumer over reader between OnStart and OnStop. Stop cancels the
// loop, waits for the in-flight message or the stop deadline, then closes the reader.
func attachReader(lc fx.Lifecycle, consumer *Consumer, reader closingReader, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := consumer.Run(ctx, reader); err != nil {
					log.Error("kafka consumer stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
				log.Warn("kafka consumer did not drain before stop deadline")
			}
			return reader.Close()
		},
	})
}
