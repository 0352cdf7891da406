package config

import "os"

// lookupEnv reads the SNIPY__-prefixed environment variable name, reporting
// whether it was present at all.
func lookupEnv(name string) (value string, present bool) {
	return os.LookupEnv(EnvPrefix + name)
}
