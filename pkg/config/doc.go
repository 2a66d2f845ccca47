// Package config loads typed configuration structs from environment
// variables, with an optional .env file for local development.
//
// Each struct type is parsed once per process and cached, so independent
// components can call Load for their own config slice without coordinating:
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
// Parsing is delegated to github.com/caarlos0/env; struct fields declare
// their variables with `env:"NAME"` tags and defaults with `envDefault`.
package config
