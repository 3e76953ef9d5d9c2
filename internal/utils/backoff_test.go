package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		name       string
		base       int
		attempt    int
		maxSeconds int
		want       time.Duration
	}{
		{"first retry", 2, 0, 600, time.Second},
		{"second retry", 2, 1, 600, 2 * time.Second},
		{"fifth retry", 2, 4, 600, 16 * time.Second},
		{"capped", 2, 10, 600, 600 * time.Second},
		{"base three", 3, 3, 600, 27 * time.Second},
		{"negative attempt clamps", 2, -1, 600, time.Second},
		{"huge attempt stays capped", 2, 1000, 600, 600 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Backoff(tt.base, tt.attempt, tt.maxSeconds))
		})
	}
}

func TestBackoffWithJitter(t *testing.T) {
	for i := 0; i < 50; i++ {
		d := BackoffWithJitter(2, 2, 600)
		assert.GreaterOrEqual(t, d, 4*time.Second)
		assert.Less(t, d, 5*time.Second)
	}
}
