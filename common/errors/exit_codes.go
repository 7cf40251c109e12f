package errors

type ExitCode int

const (
	GenericFailureExitCode ExitCode = 1

	// Bad flags or an unreadable config file.
	ConfigFailureExitCode ExitCode = 70

	// A driver could not be built or its medium stopped answering.
	DriverFailureExitCode ExitCode = 80

	// Fewer realizations than required succeeded.
	TooManyFailuresExitCode ExitCode = 90

	CouldNotExecExitCode ExitCode = 110

	// The run was cancelled by the user or a signal.
	UserExitExitCode ExitCode = 130
)
