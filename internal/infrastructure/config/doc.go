// Package config handles loading and validating Coldtag Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Reading an optional .env file
//   - Overriding with COLDTAG_* environment variables
//   - Validation of required fields
//
// Sensitive values (MQTT password, InfluxDB token) should be set via environment
// variables rather than committed to the YAML file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Broker.Host)
package config
