// Package bootstrap builds the runtime dependencies shared by the binaries
// from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"jewelshot/internal/infra"
	"jewelshot/internal/notify"
	"jewelshot/internal/processor"
	"jewelshot/internal/providers/genai"
	"jewelshot/internal/storage"
)

// ObjectStore returns the configured store and, for the file driver, the
// local directory that should be served under /static.
func ObjectStore(ctx context.Context, cfg *infra.Config) (storage.ObjectStore, string, error) {
	switch cfg.StorageDriver {
	case "s3":
		store, err := storage.NewS3Store(ctx, storage.S3Options{
			Endpoint:   cfg.S3Endpoint,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			Bucket:     cfg.S3Bucket,
			UseSSL:     cfg.S3UseSSL,
			PresignTTL: cfg.S3PresignTTL,
		})
		return store, "", err
	default:
		path := cfg.StoragePath
		if !filepath.IsAbs(path) {
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
		}
		store, err := storage.NewFileStore(path, cfg.StorageBaseURL)
		if err != nil {
			return nil, "", err
		}
		return store, store.BasePath(), nil
	}
}

// Notifier publishes to AMQP when a broker is configured and logs otherwise.
// The returned close func drains in-flight deliveries first.
func Notifier(cfg *infra.Config, logger zerolog.Logger) (*notify.Dispatcher, func(), error) {
	if cfg.AMQPURL == "" {
		d := notify.NewDispatcher(notify.LogNotifier{Logger: logger}, logger)
		return d, d.Wait, nil
	}
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect amqp: %w", err)
	}
	pub, err := notify.NewAMQPPublisher(conn, cfg.NotifyExchange)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("declare exchange: %w", err)
	}
	d := notify.NewDispatcher(pub, logger)
	return d, func() {
		d.Wait()
		_ = pub.Close()
		_ = conn.Close()
	}, nil
}

// Provider selects the remote generation API or the synthetic renderer.
func Provider(cfg *infra.Config, logger zerolog.Logger) processor.Provider {
	if cfg.ProviderMode == "synthetic" {
		logger.Warn().Msg("bootstrap: synthetic provider enabled, results are placeholders")
		return genai.NewSynthetic()
	}
	return genai.NewClient(genai.Options{
		BaseURL:    cfg.ProviderBaseURL,
		Timeout:    cfg.ProviderTimeout,
		HTTPClient: &http.Client{},
		Logger:     &logger,
	})
}
