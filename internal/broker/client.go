package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/DracoZBA/Watana/internal/ingest"
	"github.com/DracoZBA/Watana/internal/metrics"
	"github.com/DracoZBA/Watana/pkg/clients"
	"github.com/DracoZBA/Watana/pkg/config"
	"github.com/DracoZBA/Watana/pkg/logging"
)

// Handler processes one message from the broker. A returned ingest.ErrDecode
// sends the raw payload to the dead-letter topic; any other error is logged
// and the message is still acknowledged.
type Handler func(ctx context.Context, topic string, payload []byte) error

// Config holds the MQTT connection settings.
type Config struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	Topic     string
	QoS       byte
	DLQTopic  string

	ConnectBaseDelay time.Duration
	ConnectMaxDelay  time.Duration
}

// LoadConfig reads the MQTT settings from the environment. An empty
// MQTT_BROKER_URL means ingestion is disabled.
func LoadConfig(logger logging.Logger) Config {
	qos := config.GetEnvInt("MQTT_QOS", 1)
	if qos < 0 || qos > 2 {
		logger.WithField("qos", qos).Warn("MQTT_QOS out of range, using QoS 1")
		qos = 1
	}

	return Config{
		BrokerURL:        config.GetEnv("MQTT_BROKER_URL", ""),
		ClientID:         config.GetEnv("MQTT_CLIENT_ID", "vigia-ingest"),
		Username:         config.GetEnv("MQTT_USERNAME", ""),
		Password:         config.GetEnv("MQTT_PASSWORD", ""),
		Topic:            config.GetEnv("MQTT_TOPIC", "sensors/#"),
		QoS:              byte(qos),
		DLQTopic:         config.GetEnv("MQTT_DLQ_TOPIC", "sensors/dlq"),
		ConnectBaseDelay: config.GetEnvDuration("MQTT_CONNECT_BASE_DELAY", time.Second),
		ConnectMaxDelay:  config.GetEnvDuration("MQTT_CONNECT_MAX_DELAY", time.Minute),
	}
}

// publisher is the slice of mqtt.Client the dead-letter path needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Consumer subscribes to the sensor topic and feeds each message through the
// handler, one at a time in arrival order.
type Consumer struct {
	cfg     Config
	handler Handler
	logger  logging.Logger
	metrics *metrics.Metrics

	client mqtt.Client
	dlq    publisher

	ctx    context.Context
	cancel context.CancelFunc
}

func NewConsumer(cfg Config, handler Handler, logger logging.Logger, m *metrics.Metrics) *Consumer {
	return &Consumer{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		metrics: m,
	}
}

// Start connects to the broker, retrying with capped exponential backoff
// until the connection succeeds or ctx is cancelled, then subscribes.
// Reconnects after a connection loss are handled by the client itself, with
// the subscription restored on each reconnect.
func (c *Consumer) Start(ctx context.Context) error {
	if c.cfg.BrokerURL == "" {
		return errors.New("broker url is required")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)

	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.BrokerURL).
		SetClientID(c.cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(c.cfg.ConnectMaxDelay).
		SetOrderMatters(true)

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		c.logger.WithFields(logging.Fields{
			"broker": c.cfg.BrokerURL,
			"topic":  c.cfg.Topic,
		}).Info("Connected to MQTT broker")

		token := client.Subscribe(c.cfg.Topic, c.cfg.QoS, c.onMessage)
		if token.Wait() && token.Error() != nil {
			c.logger.WithError(token.Error()).Error("Failed to subscribe to sensor topic")
		}
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.logger.WithError(err).Warn("MQTT connection lost, reconnecting")
		if c.metrics != nil {
			c.metrics.BrokerReconnects.WithLabelValues("connection_lost").Inc()
		}
	})

	c.client = mqtt.NewClient(opts)
	c.dlq = c.client

	policy := clients.NewConnectRetryPolicy(c.cfg.ConnectBaseDelay, c.cfg.ConnectMaxDelay)
	err := clients.RetryForever(c.ctx, policy, func() error {
		token := c.client.Connect()
		token.Wait()
		if err := token.Error(); err != nil {
			c.logger.WithError(err).Warn("MQTT connect attempt failed")
			if c.metrics != nil {
				c.metrics.BrokerReconnects.WithLabelValues("connect_failed").Inc()
			}
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	return nil
}

// onMessage runs on the client's callback goroutine; with ordered delivery
// enabled this serializes message handling.
func (c *Consumer) onMessage(_ mqtt.Client, msg mqtt.Message) {
	c.process(c.ctx, msg.Topic(), msg.Payload())
}

func (c *Consumer) process(ctx context.Context, topic string, payload []byte) {
	start := time.Now()
	err := c.handler(ctx, topic, payload)
	if c.metrics != nil {
		c.metrics.HandleDuration.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	}

	switch {
	case err == nil:
		c.countMessage(topic, "ok")
	case errors.Is(err, ingest.ErrDecode):
		c.countMessage(topic, "dead_lettered")
		c.deadLetter(topic, payload, err)
	default:
		c.countMessage(topic, "error")
		c.logger.WithFields(logging.Fields{
			"topic": topic,
			"error": err.Error(),
		}).Error("Message handler failed")
	}
}

func (c *Consumer) deadLetter(topic string, payload []byte, cause error) {
	if c.cfg.DLQTopic == "" || c.dlq == nil {
		return
	}

	encoded, err := EncodeDLQMessage(topic, payload, cause, c.cfg.ClientID)
	if err != nil {
		c.logger.WithError(err).Error("Failed to encode dead-letter payload")
		return
	}

	token := c.dlq.Publish(c.cfg.DLQTopic, c.cfg.QoS, false, encoded)
	if token.Wait() && token.Error() != nil {
		c.logger.WithError(token.Error()).Error("Failed to publish to dead-letter topic")
	}
}

func (c *Consumer) countMessage(topic, status string) {
	if c.metrics != nil {
		c.metrics.BrokerMessages.WithLabelValues(topic, status).Inc()
	}
}

// IsConnected reports whether the underlying client holds a live broker
// connection. Used by the health checker.
func (c *Consumer) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

// Stop unsubscribes and disconnects, allowing in-flight callbacks a short
// grace period to finish.
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.client == nil || !c.client.IsConnected() {
		return
	}
	if token := c.client.Unsubscribe(c.cfg.Topic); token.Wait() && token.Error() != nil {
		c.logger.WithError(token.Error()).Warn("Failed to unsubscribe")
	}
	c.client.Disconnect(250)
	c.logger.Info("Disconnected from MQTT broker")
}
