// Package config handles loading and validating valve core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with VALVECORE_* environment variables
//   - Validation of required fields and GPIO pin assignments
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (passwords, tokens, passkey hash) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Device.ID)
package config
