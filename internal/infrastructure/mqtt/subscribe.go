package mqtt

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// SubscribeInbound routes both command topics of the valve, cmd_data and
// control_data, to handler. The event field inside each payload tells
// set_valve_basic from set_valve_control, so one handler serves both.
//
//	err := client.SubscribeInbound(byte(cfg.MQTT.QoS), func(_ string, payload []byte) error {
//	    return commands.Route(ctx, command.ChannelMQTT, payload)
//	})
func (c *Client) SubscribeInbound(qos byte, handler MessageHandler) error {
	for _, topic := range c.topics.Inbound() {
		if err := c.Subscribe(topic, qos, handler); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}
	return nil
}

// Subscribe registers handler for one topic.
//
// Paho calls handlers from its own goroutine, one message at a time per
// subscription, so a slow handler delays the commands queued behind it. The
// subscription is remembered and replayed after a reconnect.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case handler == nil:
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	case !c.IsConnected():
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, qos: qos, handler: handler}
	c.subMu.Unlock()

	if err := waitToken(c.client.Subscribe(topic, qos, c.wrapHandler(handler)), defaultPublishTimeout); err != nil {
		c.subMu.Lock()
		delete(c.subscriptions, topic)
		c.subMu.Unlock()
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	return nil
}

// SubscriptionCount returns how many topics will be replayed on reconnect.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription reports whether topic, matched exactly, is subscribed.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subscriptions[topic]
	return ok
}

// waitToken waits up to d for a paho operation to finish.
func waitToken(token pahomqtt.Token, d time.Duration) error {
	if !token.WaitTimeout(d) {
		return fmt.Errorf("%w after %v", ErrTimeout, d)
	}
	return token.Error()
}
