package config

// Constants defining default values for application configuration
const (
	DefaultEnvFile = ".env"

	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	StorageS3    = "s3"
	StorageLocal = "local"

	DefaultImportWorkers = 2
	DefaultLogLevel      = "info"

	// LocalMediaRoute is where the server exposes the local storage backend.
	LocalMediaRoute = "/media/"
)
