// Package config provides configuration management for the Empath service.
//
// # Overview
//
// The config package uses Viper to load configuration from YAML files and
// environment variables. It provides a type-safe configuration structure with
// validation, default values, and automatic file creation.
//
// # Configuration File
//
// The configuration is stored at ~/.empath/config.yaml and is automatically
// created with sensible defaults on first use. The file structure mirrors
// the Go structs defined in this package.
//
// # Environment Variables
//
// All configuration values can be overridden using environment variables
// with the EMPATH_ prefix. Nested fields are separated by underscores.
//
// Examples:
//   - EMPATH_LLM_ENDPOINT=http://gpu-host:11434
//   - EMPATH_ANALYSIS_MODE=combined
//   - EMPATH_STORE_BACKEND=redis
//   - EMPATH_LOGGING_LEVEL=debug
//
// # Configuration Sections
//
//   - Server: HTTP listener address and timeouts
//   - Analysis: emotion-analysis backend topology (combined or split)
//   - LLM: generative backend endpoint, model, and sampling settings
//   - Synthesis: speech synthesis backend and voice-shaping parameters
//   - Store: conversation persistence backend (file or redis) and bounds
//   - Logging: log level and output file configuration
//
// # Path Expansion
//
// The package automatically expands ~ to the user's home directory in
// all path configurations, making config files portable across systems.
//
// # Validation
//
// The Validate() method checks configuration for common errors:
//   - Valid enum values (analysis mode, llm mode, store backend, log level)
//   - Required field presence per selected backend
//   - Numeric range validation
//
// # Thread Safety
//
// Config instances are not thread-safe. If you need concurrent access,
// wrap the config in a sync.RWMutex or create separate instances.
package config
