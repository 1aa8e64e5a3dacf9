package notify

import (
	"fmt"
	"time"

	"dumpwatch/internal/logger"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const publishTimeout = 5 * time.Second

// MQTTNotifier publishes events with QoS 1 to <topic>/<camera_id>.
type MQTTNotifier struct {
	client mqtt.Client
	topic  string
	logger *logger.Logger
}

func NewMQTTNotifier(broker, clientID, topic string, logger *logger.Logger) (*MQTTNotifier, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("MQTT connection established to %s", broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warning("MQTT connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &MQTTNotifier{client: client, topic: topic, logger: logger}, nil
}

// Notify queues the publish and returns immediately. Delivery failures are logged.
func (n *MQTTNotifier) Notify(ev Event) error {
	payload, err := Payload(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	topic := Topic(n.topic, ev.CameraID)
	token := n.client.Publish(topic, 1, false, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			n.logger.Warning("MQTT publish of %s timed out", ev.EventID)
			return
		}
		if err := token.Error(); err != nil {
			n.logger.Error("MQTT publish of %s failed: %v", ev.EventID, err)
		}
	}()
	return nil
}

func (n *MQTTNotifier) Close() {
	n.client.Disconnect(250)
}
