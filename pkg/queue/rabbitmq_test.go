package queue

import (
	"errors"
	"fmt"
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"

	"github.com/HatmanStack/canvas-demo/models"
)

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"validation error", &models.ValidationError{Message: "bad input"}, true},
		{"generation error", &models.GenerationError{Detail: "model said no"}, true},
		{"content rejected", models.ErrContentRejected, true},
		{"rate limit", models.ErrRateLimitExceeded, true},
		{"wrapped validation error", fmt.Errorf("outer: %w", &models.ValidationError{Message: "x"}), true},
		{"transient service error", &models.TransientServiceError{Err: errors.New("timeout")}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isPermanent(tt.err))
		})
	}
}

func TestAttemptCount(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{"nil headers", nil, 0},
		{"missing key", amqp.Table{"other": 1}, 0},
		{"int value", amqp.Table{"x-attempts": 2}, 2},
		{"int32 value", amqp.Table{"x-attempts": int32(3)}, 3},
		{"int64 value", amqp.Table{"x-attempts": int64(4)}, 4},
		{"string value", amqp.Table{"x-attempts": "5"}, 5},
		{"unparseable string", amqp.Table{"x-attempts": "nope"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, attemptCount(tt.headers))
		})
	}
}
