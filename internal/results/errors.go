package results

import "codeberg.org/mutker/sigjitter/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("results_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("results_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("results_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("results_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("results_transaction_failed")

	// Storage Errors
	ErrStorageInit  = errors.ErrInitResults
	ErrStorageClose = errors.ErrCloseResults
	ErrQueryFailed  = errors.ErrorCode("results_query_failed")

	// Record Errors
	ErrRecordFailed  = errors.ErrRecordResults
	ErrInvalidReport = errors.ErrorCode("results_invalid_report")
	ErrDuplicateRun  = errors.ErrorCode("results_duplicate_run")
	ErrRunNotFound   = errors.ErrorCode("results_run_not_found")

	// Operation Errors
	ErrOperationTimeout = errors.ErrTimeout
)
