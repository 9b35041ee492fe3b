// Package storage aggregates the external stores: Redis for caches,
// MySQL for search history and the outbox, MinIO for uploaded resumes
// and RabbitMQ for event publication.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/steph-grigors/ai-job-matcher/internal/config"
)

// Storage bundles all storage dependencies. Optional components stay nil
// when unconfigured; callers check before use.
type Storage struct {
	Redis    *Redis
	MySQL    *MySQL
	MinIO    *MinIO
	RabbitMQ *RabbitMQ
}

// NewStorage initializes every configured component. Components that
// fail to initialize are logged and left nil; only a total failure of
// all configured components is an error.
func NewStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	s := &Storage{}
	var initErrors []string

	if cfg.Redis.Address != "" {
		redis, err := NewRedis(&cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("redis initialization failed")
			initErrors = append(initErrors, fmt.Sprintf("redis: %v", err))
		} else {
			s.Redis = redis
			logger.Info().Str("address", cfg.Redis.Address).Msg("redis connected")
		}
	}

	if cfg.MySQL.Host != "" {
		mysql, err := NewMySQL(&cfg.MySQL)
		if err != nil {
			logger.Warn().Err(err).Msg("mysql initialization failed")
			initErrors = append(initErrors, fmt.Sprintf("mysql: %v", err))
		} else {
			s.MySQL = mysql
			logger.Info().Str("database", cfg.MySQL.Database).Msg("mysql connected")
		}
	}

	if cfg.MinIO.Endpoint != "" {
		minio, err := NewMinIO(&cfg.MinIO, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("minio initialization failed")
			initErrors = append(initErrors, fmt.Sprintf("minio: %v", err))
		} else {
			s.MinIO = minio
		}
	}

	if cfg.RabbitMQ.URL != "" {
		mq, err := NewRabbitMQ(&cfg.RabbitMQ, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("rabbitmq initialization failed")
			initErrors = append(initErrors, fmt.Sprintf("rabbitmq: %v", err))
		} else {
			s.RabbitMQ = mq
		}
	}

	configured := cfg.Redis.Address != "" || cfg.MySQL.Host != "" || cfg.MinIO.Endpoint != "" || cfg.RabbitMQ.URL != ""
	if configured && s.Redis == nil && s.MySQL == nil && s.MinIO == nil && s.RabbitMQ == nil {
		return nil, fmt.Errorf("all storage components failed to initialize: %s", strings.Join(initErrors, "; "))
	}

	return s, nil
}

// Close shuts down every live connection.
func (s *Storage) Close(logger zerolog.Logger) {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			logger.Warn().Err(err).Msg("close rabbitmq failed")
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			logger.Warn().Err(err).Msg("close mysql failed")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			logger.Warn().Err(err).Msg("close redis failed")
		}
	}
}
