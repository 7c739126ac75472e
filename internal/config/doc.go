// Package config loads and validates application configuration from
// environment variables and optional config files. It gives every
// component type-safe access to its settings, including the worker
// pool limits and the generative model selection.
package config
