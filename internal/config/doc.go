// Package config provides configuration loading and validation for the
// audio transcription service. Configuration is read from YAML over
// built-in defaults; secrets may come from the environment or a .env file.
package config
