package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrNotImplemented  ErrorCode = "not_implemented"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidDuration ErrorCode = "invalid_duration"
	ErrInvalidPeriod   ErrorCode = "invalid_period"
	ErrInvalidJitter   ErrorCode = "invalid_max_jitter"
	ErrInvalidRate     ErrorCode = "invalid_min_samples_per_second"
	ErrInvalidScenario ErrorCode = "invalid_scenario"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"
	ErrAlreadyRunning ErrorCode = "already_running"

	// Measurement outcomes
	ErrMeasurementDegenerate ErrorCode = "measurement_degenerate"
	ErrUnderSampled          ErrorCode = "under_sampled"
	ErrPreRollTimeout        ErrorCode = "preroll_timeout"

	// Application errors
	ErrInitApp   ErrorCode = "init_app_failed"
	ErrRunFailed ErrorCode = "run_failed"

	// Operation errors
	ErrOperationFailed ErrorCode = "operation_failed"
	ErrTimeout         ErrorCode = "operation_timeout"
	ErrCanceled        ErrorCode = "operation_canceled"

	// Results errors
	ErrInitResults   ErrorCode = "init_results_failed"
	ErrRecordResults ErrorCode = "record_results_failed"
	ErrCloseResults  ErrorCode = "close_results_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:              "Internal error occurred",
	ErrInvalidArgument:       "Invalid argument provided",
	ErrNotImplemented:        "Operation not implemented",
	ErrInvalidConfig:         "Invalid configuration",
	ErrBindFlags:             "Failed to bind flags",
	ErrReadConfig:            "Failed to read config file",
	ErrInvalidDuration:       "Invalid test duration",
	ErrInvalidPeriod:         "Invalid signal period",
	ErrInvalidJitter:         "Invalid jitter budget",
	ErrInvalidRate:           "Invalid minimum sampling rate",
	ErrInvalidScenario:       "Unknown scenario",
	ErrInvalidLogLevel:       "Invalid log level",
	ErrInitFailed:            "Initialization failed",
	ErrShutdownFailed:        "Shutdown failed",
	ErrAlreadyRunning:        "Another runner holds the device",
	ErrMeasurementDegenerate: "No transitions observed in the measurement window",
	ErrUnderSampled:          "Sampling rate below minimum",
	ErrPreRollTimeout:        "No initial transition observed before pre-roll timeout",
	ErrInitApp:               "Failed to initialize application",
	ErrRunFailed:             "Run failed",
	ErrOperationFailed:       "Operation failed",
	ErrTimeout:               "Operation timed out",
	ErrCanceled:              "Operation canceled",
	ErrInitResults:           "Failed to initialize results store",
	ErrRecordResults:         "Failed to record run report",
	ErrCloseResults:          "Failed to close results store",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
