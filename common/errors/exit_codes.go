package errors

type ExitCode int

const (
	// The scheduler loop failed in debug mode, or the admin server did.
	RunFailureExitCode ExitCode = 1

	ConfigFailureExitCode ExitCode = 2

	// A component could not be created from a valid configuration.
	BuildFailureExitCode ExitCode = 3
)
