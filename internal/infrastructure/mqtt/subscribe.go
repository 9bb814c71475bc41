package mqtt

import (
	"fmt"
	"strings"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscribe registers handler for a topic filter and keeps it for
// restoration after a reconnect. Subscribing a filter again replaces its
// handler; if that fails the previous handler stays registered.
//
// The audio bridge holds two filters: Topics.AllResponses for request
// replies and Topics.AllEvents for daemon signals. Handlers run on paho's
// delivery goroutine and must not block.
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	if err := validateFilter(filter); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, filter)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	prev, replacing := c.subscriptions[filter]
	c.subscriptions[filter] = subscription{topic: filter, qos: qos, handler: handler}
	c.subMu.Unlock()

	if err := await(c.client.Subscribe(filter, qos, c.wrapHandler(handler))); err != nil {
		c.subMu.Lock()
		if replacing {
			c.subscriptions[filter] = prev
		} else {
			delete(c.subscriptions, filter)
		}
		c.subMu.Unlock()
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, filter, err)
	}
	return nil
}

// Unsubscribe drops filter. While disconnected the filter is only forgotten
// so the reconnect does not restore it.
func (c *Client) Unsubscribe(filter string) error {
	if filter == "" {
		return ErrInvalidTopic
	}

	c.subMu.Lock()
	delete(c.subscriptions, filter)
	c.subMu.Unlock()

	if !c.IsConnected() {
		return nil
	}
	if err := await(c.client.Unsubscribe(filter)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, filter, err)
	}
	return nil
}

func await(token pahomqtt.Token) error {
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("timeout after %v", defaultPublishTimeout)
	}
	return token.Error()
}

// validateFilter applies the MQTT filter rules: '+' fills a whole level and
// '#' fills the last one.
func validateFilter(filter string) error {
	if filter == "" {
		return ErrInvalidTopic
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "#" && i != len(levels)-1:
			return fmt.Errorf("%w: %q: '#' must be the last level", ErrInvalidTopic, filter)
		case level != "+" && level != "#" && strings.ContainsAny(level, "+#"):
			return fmt.Errorf("%w: %q: wildcard inside level %q", ErrInvalidTopic, filter, level)
		}
	}
	return nil
}
