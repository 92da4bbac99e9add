// Package config provides YAML-based configuration for the OmniLock gateway.
//
// Configuration is loaded in layers:
//  1. Built-in defaults (defaultConfig)
//  2. YAML file (configs/config.yaml by default)
//  3. Environment variable overrides (OMNIGATE_* variables)
//  4. Validation
//
// Secrets (the webhook auth header, MQTT credentials) should be supplied
// via environment variables rather than committed to the YAML file.
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Gateway.Port)
package config
