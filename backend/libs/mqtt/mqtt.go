package mqtt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const defaultConnectTimeout = 10 * time.Second

// NewClient connects a paho client to broker. The client reconnects on its own afterwards.
func NewClient(broker, clientID string) (paho.Client, error) {
	broker = strings.TrimSpace(broker)
	if broker == "" {
		return nil, errors.New("mqtt: broker is empty")
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetConnectTimeout(defaultConnectTimeout).
		SetOrderMatters(false)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect: %w", err)
	}
	return client, nil
}
