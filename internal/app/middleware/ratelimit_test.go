package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewUsesInMemoryDailyCounterByDefault(t *testing.T) {
	rl := New(Config{PerSecondLimit: 10, PerDayLimit: 100})
	defer rl.Stop()

	_, ok := rl.perDay.(*window)
	assert.True(t, ok, "expected the in-memory window when RedisAddr is unset")
}

func TestNewUsesRedisDailyCounterWhenConfigured(t *testing.T) {
	rl := New(Config{PerSecondLimit: 10, PerDayLimit: 100, RedisAddr: "localhost:6379"})
	defer rl.Stop()

	_, ok := rl.perDay.(*redisDailyCounter)
	assert.True(t, ok, "expected the redis-backed counter when RedisAddr is set")
}
