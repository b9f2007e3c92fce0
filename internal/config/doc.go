// Package config loads and validates process configuration from the
// environment. Everything here is resolved once at start and treated as
// immutable for the process lifetime, including all experiment knobs.
package config
