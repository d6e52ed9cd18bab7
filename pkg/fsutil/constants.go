package fsutil

// File and directory permission constants.
const (
	FileModeDefault = 0o644 // -rw-r--r--
	FileModeExec    = 0o755 // -rwxr-xr-x

	DirModeDefault = 0o755 // drwxr-xr-x
)

// Staging name prefixes. Directories carrying them are never live content.
const (
	StagingPrefix = ".staging-"
	BackupPrefix  = ".backup-"
)
