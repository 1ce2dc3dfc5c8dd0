// Package config provides configuration loading and validation for the Kenta
// push-to-talk client. It handles YAML-based configuration with struct
// validation, pinning the audio parameters that form the fixed out-of-band
// wire contract with the backend.
package config
