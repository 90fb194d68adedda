package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-records/pkg/logger"
	"github.com/jwalitptl/clinic-records/pkg/messaging"
)

func TestNewRedisBrokerRejectsBadURL(t *testing.T) {
	_, err := NewRedisBroker(context.Background(), Config{URL: "http://not-redis"}, logger.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse Redis URL")
}

func TestChannelUsesPrefix(t *testing.T) {
	b := &RedisBroker{prefix: "clinic."}
	assert.Equal(t, "clinic.patient.created", b.Channel(messaging.Message{Topic: "patient.created"}))
}
