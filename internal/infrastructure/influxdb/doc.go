// Package influxdb records audio telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library for connection
// management and batched writes, and provides Telemetry, an audio.Observer
// that turns registry changes and command outcomes into points.
//
// # Measurements
//
//   - audio_level: volume and mute of a device or stream, tagged by
//     category, index and name, written on every Added/Changed event
//   - audio_command: duration of each resolved command, tagged by kind
//     and outcome
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	proc.AddObserver(influxdb.NewTelemetry(client))
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Writes are non-blocking; batch errors are delivered via SetOnError.
package influxdb
