// Package config holds the defaults shared by the evote-tally binaries.
package config

import "time"

const (
	DefaultKeyPath      = "authority_private_key.pem"
	DefaultAPIHost      = "127.0.0.1"
	DefaultAPIPort      = 5000
	DefaultDBType       = "pebble"
	DefaultDatadir      = ".evote-tally" // relative to the user's home directory
	DefaultTallyTimeout = 10 * time.Minute
	DefaultLogLevel     = "info"
	DefaultLogOutput    = "stdout"
)
