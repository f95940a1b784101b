package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"bizbilling/internal/domain/model"
	"bizbilling/internal/domain/ports/repository"
	"bizbilling/internal/infra/metrics"
	red "bizbilling/internal/infra/redis"
)

var _ repository.ServiceDefinitionRepository = (*serviceDefinitionCacheDecorator)(nil)

// serviceDefinitionCacheDecorator keeps catalog entries in redis. Reads inside
// a transaction go straight to the database so row locks still apply.
type serviceDefinitionCacheDecorator struct {
	inner  repository.ServiceDefinitionRepository
	cache  red.Cache
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewServiceDefinitionCacheDecorator(inner repository.ServiceDefinitionRepository, cache red.Cache, ttl time.Duration, logger *zerolog.Logger) repository.ServiceDefinitionRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &serviceDefinitionCacheDecorator{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

func definitionKey(id string) string { return fmt.Sprintf("service_def:%s", id) }

func (d *serviceDefinitionCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ServiceDefinition, error) {
	if _, locked := tx.(pgx.Tx); locked {
		metrics.IncCacheRequest("service_definition", "bypass")
		return d.inner.FindByID(ctx, tx, id)
	}

	key := definitionKey(id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var def model.ServiceDefinition
		if json.Unmarshal([]byte(val), &def) == nil {
			metrics.IncCacheRequest("service_definition", "hit")
			return &def, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		d.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	metrics.IncCacheRequest("service_definition", "miss")
	def, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(def); err == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return def, nil
}

func (d *serviceDefinitionCacheDecorator) Save(ctx context.Context, tx repository.Tx, def *model.ServiceDefinition) error {
	if err := d.inner.Save(ctx, tx, def); err != nil {
		return err
	}
	_ = d.cache.Del(ctx, definitionKey(def.ID))
	return nil
}
