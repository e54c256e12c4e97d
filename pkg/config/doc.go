// Package config loads typed configuration structs from environment
// variables, optionally seeded from dotenv files, using struct tags.
package config
