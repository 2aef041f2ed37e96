package config

import (
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string    HTTP bind address (e.g. ":8080")
//	-g string    gRPC health bind address
//	-d string    PostgreSQL DSN
//	-r string    Redis URL (empty selects the in-process cache)
//	-q string    AMQP URL (empty disables the consumer)
//	-s string    JWT HMAC secret
//	-k string    password hash key
//	-t duration  access token TTL (e.g. "15m")
//	-l string    log level
//	-m bool      run migrations on startup (use -m=false to disable)
//
// Unknown arguments are filtered out first so that flags owned by other
// components do not cause parse errors.
func parseFlags(config *Config, args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP address and port")
	fs.StringVar(&config.GRPCHealthAddr, "g", config.GRPCHealthAddr, "gRPC health address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisURL, "r", config.RedisURL, "redis URL")
	fs.StringVar(&config.AMQPURL, "q", config.AMQPURL, "AMQP URL")
	fs.StringVar(&config.JWTSecret, "s", config.JWTSecret, "JWT secret")
	fs.StringVar(&config.PasswordHashKey, "k", config.PasswordHashKey, "password hash key")
	fs.DurationVar(&config.AccessTokenTTL, "t", config.AccessTokenTTL, "access token TTL")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.BoolVar(&config.RunMigrations, "m", config.RunMigrations, "run migrations")

	if err := fs.Parse(flagx.FilterArgs(args, flagx.Names(fs))); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	return nil
}
