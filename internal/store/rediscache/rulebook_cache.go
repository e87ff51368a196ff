// Package rediscache decorates a store with a Redis read cache for
// jurisdiction compliance state. Active rulebooks are read by every
// ingestion run but replaced only by explicit approval actions, so the
// cache is invalidated exactly on activation.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/banking/compliance-sentinel/internal/config"
	"github.com/banking/compliance-sentinel/internal/domain"
	"github.com/banking/compliance-sentinel/internal/pkg/logger"
	"github.com/banking/compliance-sentinel/internal/store"
)

// Store wraps an inner store.Store with compliance-state caching.
type Store struct {
	store.Store

	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// New creates the caching decorator.
func New(inner store.Store, cfg config.RedisConfig, log *logger.Logger) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	return &Store{
		Store:  inner,
		client: client,
		ttl:    cfg.RulebookCacheTTL,
		log:    log.Named("rulebook_cache"),
	}
}

func cacheKey(jurisdictionCode string) string {
	return fmt.Sprintf("compliance:jurisdiction:%s", jurisdictionCode)
}

// GetCompliance serves from Redis when possible, falling back to the inner
// store on any cache miss or Redis failure.
func (s *Store) GetCompliance(ctx context.Context, jurisdictionCode string) (*domain.JurisdictionCompliance, error) {
	key := cacheKey(jurisdictionCode)

	cached, err := s.client.Get(ctx, key).Bytes()
	if err == nil {
		var c domain.JurisdictionCompliance
		if err := json.Unmarshal(cached, &c); err == nil {
			return &c, nil
		}
		// Corrupt cache entry; drop it and fall through.
		s.client.Del(ctx, key)
	} else if err != redis.Nil {
		s.log.Debug("redis read failed, falling through to store", logger.ErrorField(err))
	}

	c, err := s.Store.GetCompliance(ctx, jurisdictionCode)
	if err != nil {
		return nil, err
	}

	if doc, err := json.Marshal(c); err == nil {
		if err := s.client.Set(ctx, key, doc, s.ttl).Err(); err != nil {
			s.log.Debug("redis write failed", logger.ErrorField(err))
		}
	}

	return c, nil
}

// ActivateRulebook passes through to the inner store, then invalidates the
// cached jurisdiction so readers pick up the new active rulebook.
func (s *Store) ActivateRulebook(ctx context.Context, jurisdictionCode string, rulebook domain.Rulebook, version string, pushed domain.Regulation) error {
	if err := s.Store.ActivateRulebook(ctx, jurisdictionCode, rulebook, version, pushed); err != nil {
		return err
	}
	if err := s.client.Del(ctx, cacheKey(jurisdictionCode)).Err(); err != nil {
		s.log.Warn("failed to invalidate rulebook cache", logger.ErrorField(err))
	}
	return nil
}

// UpsertCompliance passes through and invalidates the cache entry.
func (s *Store) UpsertCompliance(ctx context.Context, compliance *domain.JurisdictionCompliance) error {
	if err := s.Store.UpsertCompliance(ctx, compliance); err != nil {
		return err
	}
	if err := s.client.Del(ctx, cacheKey(compliance.JurisdictionCode)).Err(); err != nil {
		s.log.Warn("failed to invalidate rulebook cache", logger.ErrorField(err))
	}
	return nil
}

// Close releases the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
