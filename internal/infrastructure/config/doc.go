// Package config handles loading and validating ReSet panel configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Resolving the default file location under $XDG_CONFIG_HOME/reset
//   - Overriding with RESET_* environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token, JWT secret) should be set
//     via environment variables
//   - API bearer-token auth is enabled by setting security.jwt.secret
//
// Usage:
//
//	cfg, err := config.LoadDefault()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Backend.Transport)
package config
