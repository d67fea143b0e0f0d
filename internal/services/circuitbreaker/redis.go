package circuitbreaker

import (
	"context"
	"errors"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix      = "circuit_breaker:"
	commandTimeout = time.Second
)

// State lives in one hash: state, failures, successes, opened_at (unix ms).
var (
	allowScript = redis.NewScript(`
		local state = tonumber(redis.call('HGET', KEYS[1], 'state') or '0')
		if state ~= 1 then
			return 1
		end
		local opened = tonumber(redis.call('HGET', KEYS[1], 'opened_at') or '0')
		if tonumber(ARGV[1]) - opened >= tonumber(ARGV[2]) then
			redis.call('HSET', KEYS[1], 'state', 2, 'successes', 0)
			return 2
		end
		return 0
	`)

	successScript = redis.NewScript(`
		redis.call('HSET', KEYS[1], 'failures', 0)
		local state = tonumber(redis.call('HGET', KEYS[1], 'state') or '0')
		if state == 2 then
			local n = redis.call('HINCRBY', KEYS[1], 'successes', 1)
			if n >= tonumber(ARGV[1]) then
				redis.call('HSET', KEYS[1], 'state', 0, 'successes', 0)
				return 1
			end
		end
		return 0
	`)

	failureScript = redis.NewScript(`
		local state = tonumber(redis.call('HGET', KEYS[1], 'state') or '0')
		local n = redis.call('HINCRBY', KEYS[1], 'failures', 1)
		if state == 2 or (state == 0 and n >= tonumber(ARGV[1])) then
			redis.call('HSET', KEYS[1], 'state', 1, 'opened_at', ARGV[2], 'successes', 0)
			return 1
		end
		return 0
	`)
)

// Redis shares breaker state between instances. Redis errors fail open.
type Redis struct {
	client *redis.Client
	name   string
	key    string
	config Config
	now    func() time.Time
}

func NewRedis(client *redis.Client, name string, config Config) *Redis {
	return &Redis{
		client: client,
		name:   name,
		key:    keyPrefix + name,
		config: config,
		now:    time.Now,
	}
}

func (cb *Redis) Allow(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	result, err := allowScript.Run(ctx, cb.client, []string{cb.key},
		cb.now().UnixMilli(), cb.config.OpenTimeout.Milliseconds()).Int()
	if err != nil {
		fiberlog.Errorf("CircuitBreaker: %s state check failed, allowing call: %v", cb.name, err)
		return true
	}
	if result == 2 {
		fiberlog.Infof("CircuitBreaker: %s is half-open", cb.name)
	}
	return result != 0
}

func (cb *Redis) RecordSuccess(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commandTimeout)
	defer cancel()

	closed, err := successScript.Run(ctx, cb.client, []string{cb.key}, cb.config.SuccessThreshold).Int()
	if err != nil {
		fiberlog.Errorf("CircuitBreaker: %s failed to record success: %v", cb.name, err)
		return
	}
	if closed == 1 {
		fiberlog.Infof("CircuitBreaker: %s closed", cb.name)
	}
}

func (cb *Redis) RecordFailure(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commandTimeout)
	defer cancel()

	opened, err := failureScript.Run(ctx, cb.client, []string{cb.key},
		cb.config.FailureThreshold, cb.now().UnixMilli()).Int()
	if err != nil {
		fiberlog.Errorf("CircuitBreaker: %s failed to record failure: %v", cb.name, err)
		return
	}
	if opened == 1 {
		fiberlog.Warnf("CircuitBreaker: %s opened", cb.name)
	}
}

func (cb *Redis) State(ctx context.Context) State {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	state, err := cb.client.HGet(ctx, cb.key, "state").Int()
	if errors.Is(err, redis.Nil) {
		return Closed
	}
	if err != nil {
		fiberlog.Errorf("CircuitBreaker: %s state read failed: %v", cb.name, err)
		return Closed
	}
	return State(state)
}

// Reset closes the breaker for every instance
func (cb *Redis) Reset(ctx context.Context) error {
	return cb.client.Del(ctx, cb.key).Err()
}
