// Package influxdb provides InfluxDB connectivity for attribute history.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, point writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series storage for:
//   - Entity attribute samples (volume, power, temperature)
//   - Device connection lifecycle events
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "devicelink",
//	    Bucket: "history",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteAttribute("avr-living-room", "main", "volume", 42.5)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via a
// callback. Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size,
// flush_interval). This reduces network overhead for chatty devices.
package influxdb
