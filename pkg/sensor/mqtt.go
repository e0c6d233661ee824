package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/thermolog/pkg/storage"
	"github.com/thermolog/pkg/types"
)

// IngestorOptions configures the MQTT subscription.
type IngestorOptions struct {
	BrokerURL string
	ClientID  string
	Topic     string
}

// DataPoint is the wire format devices publish. Timestamps are Unix
// seconds; temperature and humidity are the raw register values.
type DataPoint struct {
	DeviceID    string `json:"device_id"`
	Timestamp   int64  `json:"timestamp"`
	Temperature uint32 `json:"temperature"`
	Humidity    uint32 `json:"humidity"`
}

// Ingestor subscribes to a readings topic and inserts each decoded
// sample into the store.
type Ingestor struct {
	client mqtt.Client
	store  storage.Store
	topic  string
}

// NewIngestor connects to the broker and returns an ingestor ready to
// Start. The client retries the initial connection until the broker
// becomes reachable.
func NewIngestor(opts IngestorOptions, store storage.Store) (*Ingestor, error) {
	clientID := opts.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("thermolog-%d", time.Now().UnixNano())
	}

	mqttOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(clientID).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second)

	client := mqtt.NewClient(mqttOpts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, errors.Wrapf(token.Error(), "connect to broker %s", opts.BrokerURL)
	}

	log.Infof("connected to MQTT broker %s as %s", opts.BrokerURL, clientID)
	return &Ingestor{client: client, store: store, topic: opts.Topic}, nil
}

// Start subscribes to the configured topic. Decoded readings are
// inserted as they arrive.
func (in *Ingestor) Start() error {
	token := in.client.Subscribe(in.topic, 0, in.handle)
	if token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "subscribe to %s", in.topic)
	}
	log.Infof("subscribed to %s", in.topic)
	return nil
}

func (in *Ingestor) handle(_ mqtt.Client, msg mqtt.Message) {
	var dp DataPoint
	if err := json.Unmarshal(msg.Payload(), &dp); err != nil {
		log.Warnf("discarding malformed payload on %s: %v", msg.Topic(), err)
		return
	}
	if dp.Timestamp < 0 {
		log.Warnf("discarding reading from %s with negative timestamp %d", dp.DeviceID, dp.Timestamp)
		return
	}

	r := types.Reading{
		Timestamp:   dp.Timestamp,
		Temperature: dp.Temperature,
		Humidity:    dp.Humidity,
	}
	if err := in.store.Insert(context.Background(), r); err != nil {
		log.Warnf("failed to store reading from %s: %v", dp.DeviceID, err)
		return
	}
	log.Debugf("ingested reading from %s at %d", dp.DeviceID, dp.Timestamp)
}

// Close disconnects from the broker.
func (in *Ingestor) Close() {
	in.client.Disconnect(250)
}
