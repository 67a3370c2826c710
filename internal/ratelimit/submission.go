package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/marketplace/internal/config"
)

const keySubmission = "marketplace:submission:%s"

// submissionScript refills the uploader's bucket from the Redis clock and
// takes one token. It returns {allowed, retry_after_ms}.
const submissionScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local t = redis.call("TIME")
local now = t[1] * 1000 + math.floor(t[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local ts = tonumber(state[2]) or now
if now > ts then
  tokens = math.min(burst, tokens + (now - ts) / 1000 * rate)
end

local allowed = 0
local wait = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  wait = math.ceil((1 - tokens) / rate * 1000)
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {allowed, wait}
`

var ErrInvalidScriptReply = errors.New("invalid_rate_limit_reply")

// Result is the outcome of one submission check.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

// SubmissionLimiter throttles product submissions per uploader with a token
// bucket kept in Redis. A nil limiter allows everything.
type SubmissionLimiter struct {
	client *redis.Client
	script *redis.Script
	rate   float64
	burst  int
	ttl    time.Duration
}

func NewSubmissionLimiter(cfg config.Config, client *redis.Client) *SubmissionLimiter {
	if client == nil || cfg.Redis.SubmissionRate <= 0 || cfg.Redis.SubmissionBurst <= 0 {
		return nil
	}
	return &SubmissionLimiter{
		client: client,
		script: redis.NewScript(submissionScript),
		rate:   cfg.Redis.SubmissionRate,
		burst:  cfg.Redis.SubmissionBurst,
		ttl:    bucketTTL(cfg.Redis.SubmissionRate, cfg.Redis.SubmissionBurst),
	}
}

func (l *SubmissionLimiter) Enabled() bool {
	return l != nil && l.client != nil
}

func (l *SubmissionLimiter) Allow(ctx context.Context, username string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	key := submissionKey(username)
	reply, err := l.script.Run(ctx, l.client, []string{key}, l.rate, l.burst, l.ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("run submission limiter: %w", err)
	}
	return parseReply(reply)
}

func submissionKey(username string) string {
	return fmt.Sprintf(keySubmission, strings.ToLower(strings.TrimSpace(username)))
}

func parseReply(reply []int64) (*Result, error) {
	if len(reply) != 2 {
		return nil, ErrInvalidScriptReply
	}
	return &Result{
		Allowed:    reply[0] == 1,
		RetryAfter: time.Duration(reply[1]) * time.Millisecond,
	}, nil
}

// bucketTTL keeps an idle bucket around for twice the time a full refill takes.
func bucketTTL(rate float64, burst int) time.Duration {
	seconds := math.Ceil(float64(burst) / rate * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}
