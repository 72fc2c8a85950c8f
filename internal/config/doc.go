// Package config loads and validates opgrid configuration.
//
// Configuration is TOML, read from an explicit path, ~/.config/opgrid/config.toml
// or ./opgrid.toml, layered over Default(). Group placement, the notification
// endpoint and the log level may be overridden from OPGRID_* environment
// variables so that launch can start follower processes without rewriting
// files. Load always returns a normalized, validated config with expanded
// absolute paths.
package config
