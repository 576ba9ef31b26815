// Package config loads and validates settings for the gateway and the worker
// from ADAT_-prefixed environment variables and an optional config file.
package config
