package app

// Options represents the command-line flags accepted by snipy. Unlike the
// per-connection configuration (internal/config), which lives entirely in
// SNIPY__-prefixed environment variables, these flags control how that
// environment is loaded and a couple of process-level concerns that don't
// belong in the immutable Config value itself.
type Options struct {
	// EnvFile is an optional path to a .env file loaded before Config is
	// read; variables already set in the real environment take precedence.
	EnvFile string `long:"env-file" description:"Path to a .env file to load before reading SNIPY__ environment variables."`

	// ListEnv, when set, prints the recognized SNIPY__ variables and exits
	// without starting any listener.
	ListEnv bool `long:"list-env" description:"Print the recognized SNIPY__ environment variables and exit." optional:"yes" optional-value:"true"`

	// Verbose enables debug-level logging.
	Verbose bool `long:"verbose" description:"Verbose output (optional)" optional:"yes" optional-value:"true"`

	// LogOutput is the optional path to the log file; stdout if empty.
	LogOutput string `long:"output" description:"Path to the log file. If not set, write to stdout."`
}
