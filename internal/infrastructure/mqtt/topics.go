package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every ReSet topic.
//
// Daemon bridges use the scheme reset/{category}/{domain}/{id_or_kind}:
//
//	reset/request/audio/{request-id}    panel → bridge
//	reset/response/audio/{request-id}   bridge → panel
//	reset/event/audio/{SignalKind}      bridge → panel
//
// Panel presence lives under reset/panel/{client-id}/.
const TopicPrefix = "reset"

// Topics provides builders for ReSet MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.Request("audio", id)  // "reset/request/audio/<id>"
type Topics struct{}

// Request returns the topic a request with the given id is published on.
//
// Example: reset/request/audio/5d1c…
func (Topics) Request(domain, requestID string) string {
	return fmt.Sprintf("%s/request/%s/%s", TopicPrefix, domain, requestID)
}

// Response returns the topic the bridge answers a request on.
//
// Example: reset/response/audio/5d1c…
func (Topics) Response(domain, requestID string) string {
	return fmt.Sprintf("%s/response/%s/%s", TopicPrefix, domain, requestID)
}

// Event returns the topic a daemon signal is forwarded on.
//
// Example: reset/event/audio/SinkChanged
func (Topics) Event(domain, kind string) string {
	return fmt.Sprintf("%s/event/%s/%s", TopicPrefix, domain, kind)
}

// PanelStatus returns the retained online/offline topic of a panel client.
//
// Example: reset/panel/ReSet-Panel/status
func (Topics) PanelStatus(clientID string) string {
	return fmt.Sprintf("%s/panel/%s/status", TopicPrefix, clientID)
}

// AllResponses matches every response for a domain.
//
// Pattern: reset/response/audio/+
func (Topics) AllResponses(domain string) string {
	return fmt.Sprintf("%s/response/%s/+", TopicPrefix, domain)
}

// AllEvents matches every forwarded signal for a domain.
//
// Pattern: reset/event/audio/+
func (Topics) AllEvents(domain string) string {
	return fmt.Sprintf("%s/event/%s/+", TopicPrefix, domain)
}

// LastSegment returns the final level of a topic: the request id of a
// response topic or the signal kind of an event topic.
func LastSegment(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
