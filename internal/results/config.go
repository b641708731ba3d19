package results

import "codeberg.org/mutker/sigjitter/internal/errors"

const (
	// File system permissions and paths
	defaultDirPerm = 0o755
	DefaultDBPath  = "/var/lib/sigjitter/results.db"
	backupDirName  = "backups"
)

type Config struct {
	DBPath          string
	BackupOnMigrate bool
	Enabled         bool
}

func DefaultConfig() Config {
	return Config{
		DBPath:          DefaultDBPath,
		BackupOnMigrate: true,
		Enabled:         false, // Disabled by default
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate DBPath if results are enabled
	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
