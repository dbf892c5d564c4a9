package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetRedisDBName(t *testing.T) {
	tests := []struct {
		name     string
		db       int
		expected string
	}{
		{"Health", RedisDBHealth, "Agent Health"},
		{"Lifecycle", RedisDBLifecycle, "Lifecycle Log"},
		{"Reserved2", 2, "Reserved DB 2"},
		{"Reserved15", 15, "Reserved DB 15"},
		{"DB16", 16, "DB 16"},
		{"DB100", 100, "DB 100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetRedisDBName(tt.db))
		})
	}
}

func TestIsReservedDB(t *testing.T) {
	tests := []struct {
		name     string
		db       int
		expected bool
	}{
		{"DB0 health, not reserved", RedisDBHealth, false},
		{"DB1 lifecycle, not reserved", RedisDBLifecycle, false},
		{"DB2 reserved", 2, true},
		{"DB15 reserved", 15, true},
		{"DB16 beyond range", 16, false},
		{"negative DB", -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsReservedDB(tt.db))
		})
	}
}
