// Package config loads service configuration from the environment.
//
// Every field has an envconfig tag and a default, so an empty environment
// yields a working sandbox-backed server. Load validates that the selected
// resolver mode has the settings it needs.
package config
