package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/flagx"
)

var knownFlags = []string{"-a", "-d", "-k", "-K", "-t", "-r", "-i", "-e", "-l", "-R"}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-k string   access token HMAC secret
//	-K string   refresh token HMAC secret
//	-t int      access token validity, minutes
//	-r int      refresh token validity, minutes
//	-i int      sweep interval, minutes
//	-e string   environment (development, production, test)
//	-l string   log level
//	-R string   Redis address for rate limiting
//
// Arguments are filtered through flagx.FilterArgs first so flags that belong
// to other components (-c) do not break parsing.
func parseFlags(config *Config, args []string) error {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.AccessTokenSecret, "k", config.AccessTokenSecret, "access token secret")
	fs.StringVar(&config.RefreshTokenSecret, "K", config.RefreshTokenSecret, "refresh token secret")

	accessTTL := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	refreshTTL := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh token validity (in minutes)")
	sweepInterval := fs.Int("i", int(config.SweepInterval.Minutes()), "sweep interval (in minutes)")

	fs.StringVar(&config.Environment, "e", config.Environment, "environment")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.RedisAddr, "R", config.RedisAddr, "redis address")

	if err := fs.Parse(flagx.FilterArgs(args, knownFlags)); err != nil {
		return err
	}

	// Minutes only overwrite when a flag was actually given, so sub-minute
	// values coming from JSON or env survive.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.AccessTokenValidityDuration = time.Duration(*accessTTL) * time.Minute
		case "r":
			config.RefreshTokenValidityDuration = time.Duration(*refreshTTL) * time.Minute
		case "i":
			config.SweepInterval = time.Duration(*sweepInterval) * time.Minute
		}
	})
	return nil
}
