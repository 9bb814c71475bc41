// Package mqttbridge implements audio.Backend for ReSet daemons exposed
// through an MQTT bridge instead of D-Bus.
//
// Requests are published as JSON to reset/request/audio/{id} and answered
// on reset/response/audio/{id}; the id correlates the two. Signals arrive on
// reset/event/audio/{Kind}, where Kind is the daemon's signal member name
// (SinkChanged, CardRemoved, ...). Method names and record layouts match the
// D-Bus interface.
package mqttbridge
