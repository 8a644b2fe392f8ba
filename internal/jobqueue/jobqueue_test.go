package jobqueue

import (
	"testing"

	"github.com/stretchr/testify/require"

	"knowledgetree/internal/config"
)

func TestNewProducer_DisabledReturnsNil(t *testing.T) {
	require.Nil(t, NewProducer(config.KafkaConfig{Enabled: false}))
}

func TestNewConsumer_DisabledReturnsNil(t *testing.T) {
	require.Nil(t, NewConsumer(config.KafkaConfig{Enabled: false}, nil, nil))
}

func TestNewProgressBus_DisabledReturnsNil(t *testing.T) {
	bus, err := NewProgressBus(config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	require.Nil(t, bus)
}
