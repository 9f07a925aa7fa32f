package kafka

import (
	"context"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/ajitpratap0/relay/pkg/errors"
	"github.com/ajitpratap0/relay/pkg/models"
	"github.com/ajitpratap0/relay/pkg/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockFactory(t *testing.T, setup func(p *mocks.SyncProducer)) (ProducerFactory, **mocks.SyncProducer) {
	var producer *mocks.SyncProducer
	return func(_ []string, cfg *sarama.Config) (sarama.SyncProducer, error) {
		producer = mocks.NewSyncProducer(t, cfg)
		setup(producer)
		return producer, nil
	}, &producer
}

func TestUploadOneMessagePerRecord(t *testing.T) {
	var keys []string
	factory, producer := mockFactory(t, func(p *mocks.SyncProducer) {
		for i := 0; i < 2; i++ {
			p.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
				k, _ := msg.Key.Encode()
				keys = append(keys, string(k))
				assert.Equal(t, "orders", msg.Topic)
				return nil
			})
		}
	})

	a, err := New(&models.Connector{Adapter: AdapterID, Endpoint: "orders", Config: map[string]interface{}{
		"brokers": []interface{}{"b:9092"}, "key_field": "id",
	}}, nil, factory)
	require.NoError(t, err)
	require.NoError(t, a.Connect(context.Background()))

	require.NoError(t, a.Upload(context.Background(), []models.Record{{"id": 1}, {"id": 2}}))
	assert.Equal(t, []string{"1", "2"}, keys)
	require.NoError(t, a.Disconnect(context.Background()))
	assert.NotNil(t, *producer)
}

func TestUploadBatchMode(t *testing.T) {
	factory, _ := mockFactory(t, func(p *mocks.SyncProducer) {
		p.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
			assert.Equal(t, "{\"id\":1}\n{\"id\":2}\n", string(val))
			return nil
		})
	})

	a, err := New(&models.Connector{Adapter: AdapterID, Config: map[string]interface{}{
		"brokers": "b:9092", "topic": "t", "message_mode": "batch",
	}}, nil, factory)
	require.NoError(t, err)
	require.NoError(t, a.Connect(context.Background()))
	defer func() { _ = a.Disconnect(context.Background()) }()

	require.NoError(t, a.Upload(context.Background(), []models.Record{{"id": 1}, {"id": 2}}))
}

func TestUploadFailure(t *testing.T) {
	factory, _ := mockFactory(t, func(p *mocks.SyncProducer) {
		p.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)
	})
	a, err := New(&models.Connector{Adapter: AdapterID, Endpoint: "t", Config: map[string]interface{}{"brokers": "b"}}, nil, factory)
	require.NoError(t, err)
	require.NoError(t, a.Connect(context.Background()))
	defer func() { _ = a.Disconnect(context.Background()) }()

	err = a.Upload(context.Background(), []models.Record{{"id": 1}})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
}

func TestConfig(t *testing.T) {
	_, err := New(&models.Connector{Adapter: AdapterID, Endpoint: "t"}, nil, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = New(&models.Connector{Adapter: AdapterID, Endpoint: "t", Config: map[string]interface{}{"brokers": "b", "compression": "brotli"}}, nil, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	a, err := New(&models.Connector{Adapter: AdapterID, Endpoint: "t", Config: map[string]interface{}{"brokers": "b", "acks": "1"}},
		&vault.Credential{Kind: vault.KindBasic, Username: "u", Password: "p"}, nil)
	require.NoError(t, err)
	assert.Equal(t, sarama.WaitForLocal, a.config.Producer.RequiredAcks)
	assert.True(t, a.config.Net.SASL.Enable)
	assert.Equal(t, "u", a.config.Net.SASL.User)
}
