// Package config loads evaluation pool settings from YAML or JSON files.
//
// Example file:
//
//	workers: 4
//	queue_size: 32
//	default_timeout: 5s
//	cache_size: 512
//
// Zero or missing fields keep the pool defaults.
package config
