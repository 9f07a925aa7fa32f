// Package kafka implements an upload-only adapter that publishes records to
// a topic through a synchronous sarama producer.
//
// Configuration:
//
//	brokers:      broker addresses (required)
//	topic:        topic name (defaults to the endpoint)
//	key_field:    record field used as the message key
//	message_mode: record | batch (default record); batch sends one encoded document per batch
//	format:       jsonl | csv | avro | arrow, used by batch mode (default jsonl)
//	acks:         all | 1 | 0 (default all)
//	compression:  none | gzip | snappy | lz4 | zstd (default none)
//	tls:          enable TLS
//
// Basic credentials enable SASL/PLAIN.
package kafka

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/IBM/sarama"
	"github.com/ajitpratap0/relay/pkg/connector/base"
	"github.com/ajitpratap0/relay/pkg/connector/core"
	"github.com/ajitpratap0/relay/pkg/connector/registry"
	"github.com/ajitpratap0/relay/pkg/errors"
	"github.com/ajitpratap0/relay/pkg/formats"
	jsonpool "github.com/ajitpratap0/relay/pkg/json"
	"github.com/ajitpratap0/relay/pkg/models"
	"github.com/ajitpratap0/relay/pkg/vault"
	"go.uber.org/zap"
)

// AdapterID is the registry id of the Kafka adapter
const AdapterID = "kafka"

// ProducerFactory opens a producer; tests replace it with sarama/mocks
type ProducerFactory func(brokers []string, cfg *sarama.Config) (sarama.SyncProducer, error)

// Descriptor is the static registration descriptor
func Descriptor() core.Descriptor {
	return core.Descriptor{
		ID:             AdapterID,
		Description:    "Kafka topics (publish only)",
		Actions:        []core.Action{core.ActionUpload},
		RequiredConfig: []string{"brokers"},
	}
}

// Adapter publishes to one topic
type Adapter struct {
	*base.BaseConnector

	brokers  []string
	topic    string
	keyField string
	batched  bool
	encoder  formats.Encoder
	config   *sarama.Config
	factory  ProducerFactory

	producer sarama.SyncProducer
}

// New creates a Kafka adapter. A nil factory uses sarama.NewSyncProducer.
func New(conn *models.Connector, cred *vault.Credential, factory ProducerFactory) (*Adapter, error) {
	brokers := conn.ConfigStrings("brokers")
	if len(brokers) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, `kafka adapter requires config "brokers"`)
	}
	topic := conn.ConfigString("topic")
	if topic == "" {
		topic = conn.Endpoint
	}
	if topic == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "kafka adapter requires a topic or endpoint")
	}

	var batched bool
	switch mode := conn.ConfigString("message_mode"); mode {
	case "", "record":
	case "batch":
		batched = true
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "kafka adapter: unknown message_mode %q", mode)
	}

	format, err := formats.Parse(conn.ConfigString("format"))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "kafka adapter")
	}
	encoder, err := formats.New(format, formats.Options{
		Columns:    conn.ConfigStrings("columns"),
		AvroSchema: conn.ConfigString("avro_schema"),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "kafka adapter")
	}

	cfg, err := buildSaramaConfig(conn, cred)
	if err != nil {
		return nil, err
	}
	if factory == nil {
		factory = sarama.NewSyncProducer
	}

	return &Adapter{
		BaseConnector: base.NewBaseConnector(AdapterID, conn),
		brokers:       brokers,
		topic:         topic,
		keyField:      conn.ConfigString("key_field"),
		batched:       batched,
		encoder:       encoder,
		config:        cfg,
		factory:       factory,
	}, nil
}

func init() {
	registry.MustRegister(registry.Registration{
		Descriptor: Descriptor(),
		Factory: func(conn *models.Connector, cred *vault.Credential) (core.Adapter, error) {
			return New(conn, cred, nil)
		},
	})
}

func buildSaramaConfig(conn *models.Connector, cred *vault.Credential) (*sarama.Config, error) {
	config := sarama.NewConfig()
	config.ClientID = "relay"
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	switch conn.ConfigString("acks") {
	case "1":
		config.Producer.RequiredAcks = sarama.WaitForLocal
	case "0":
		config.Producer.RequiredAcks = sarama.NoResponse
	default:
		config.Producer.RequiredAcks = sarama.WaitForAll
	}

	switch c := strings.ToLower(conn.ConfigString("compression")); c {
	case "", "none":
		config.Producer.Compression = sarama.CompressionNone
	case "gzip":
		config.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		config.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		config.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		config.Producer.Compression = sarama.CompressionZSTD
		config.Version = sarama.V2_1_0_0
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "kafka adapter: unsupported compression %q", c)
	}

	if tlsOn, _ := conn.Config["tls"].(bool); tlsOn {
		config.Net.TLS.Enable = true
		config.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if cred != nil && cred.Kind == vault.KindBasic {
		config.Net.SASL.Enable = true
		config.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		config.Net.SASL.User = cred.Username
		config.Net.SASL.Password = cred.Password
	}

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid kafka producer configuration")
	}
	return config, nil
}

// Descriptor implements core.Adapter
func (a *Adapter) Descriptor() core.Descriptor { return Descriptor() }

// Connect opens the producer
func (a *Adapter) Connect(ctx context.Context) error {
	producer, err := a.factory(a.brokers, a.config)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to create kafka producer")
	}
	a.producer = producer
	a.MarkConnected()
	a.GetLogger(ctx).Debug("producer ready", zap.Strings("brokers", a.brokers), zap.String("topic", a.topic))
	return nil
}

// Disconnect closes the producer
func (a *Adapter) Disconnect(context.Context) error {
	if !a.MarkDisconnected() || a.producer == nil {
		return nil
	}
	return a.producer.Close()
}

// Upload publishes the batch and waits for every acknowledgement
func (a *Adapter) Upload(ctx context.Context, records []models.Record) error {
	if err := a.EnsureConnected(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	messages, err := a.messages(records)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	if err := a.producer.SendMessages(messages); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, fmt.Sprintf("failed to publish to %s", a.topic))
	}
	return nil
}

func (a *Adapter) messages(records []models.Record) ([]*sarama.ProducerMessage, error) {
	if a.batched {
		if len(records) == 0 {
			return nil, nil
		}
		var buf bytes.Buffer
		if err := a.encoder.Encode(&buf, records); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode batch")
		}
		return []*sarama.ProducerMessage{{
			Topic: a.topic,
			Value: sarama.ByteEncoder(buf.Bytes()),
			Headers: []sarama.RecordHeader{
				{Key: []byte("content-type"), Value: []byte(a.encoder.ContentType())},
				{Key: []byte("record-count"), Value: []byte(fmt.Sprint(len(records)))},
			},
		}}, nil
	}

	out := make([]*sarama.ProducerMessage, 0, len(records))
	for i, r := range records {
		value, err := jsonpool.Marshal(r)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, fmt.Sprintf("failed to encode record %d", i))
		}
		msg := &sarama.ProducerMessage{Topic: a.topic, Value: sarama.ByteEncoder(value)}
		if a.keyField != "" {
			if key, ok := models.GetPath(r, a.keyField); ok && key != nil {
				msg.Key = sarama.StringEncoder(fmt.Sprint(key))
			}
		}
		out = append(out, msg)
	}
	return out, nil
}
