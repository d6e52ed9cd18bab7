// Package errors defines the failure kinds of the install pipeline and the
// wrapping helpers used across sitepkg.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an install failure. Callers receive it next to the
// human readable message.
type Kind string

// Failure kinds.
const (
	KindManifestMissing      Kind = "ManifestMissing"
	KindManifestInvalid      Kind = "ManifestInvalid"
	KindArtifactFetchFailed  Kind = "ArtifactFetchFailed"
	KindArchiveExtractFailed Kind = "ArchiveExtractFailed"
	KindConfigMissing        Kind = "ConfigMissing"
	KindFileCopyFailed       Kind = "FileCopyFailed"
	KindUnknown              Kind = "Unknown"
)

// Pipeline errors.
var (
	ErrManifestMissing      = fmt.Errorf("manifest file not found")
	ErrManifestInvalid      = fmt.Errorf("manifest is not valid")
	ErrArtifactFetchFailed  = fmt.Errorf("artifact fetch failed")
	ErrArchiveExtractFailed = fmt.Errorf("archive extraction failed")
	ErrConfigMissing        = fmt.Errorf("required file does not exist")
	ErrFileCopyFailed       = fmt.Errorf("file copy failed")
)

// Config errors.
var (
	ErrEmptyConfigPath   = fmt.Errorf("config file path cannot be empty")
	ErrInvalidConfigPath = fmt.Errorf("invalid config file path")
	ErrConfigParse       = fmt.Errorf("failed to parse config")
	ErrConfigValidation  = fmt.Errorf("invalid configuration")
	ErrConfigEncode      = fmt.Errorf("failed to encode config")
	ErrConfigDirectory   = fmt.Errorf("failed to create config directory")
	ErrConfigFileCreate  = fmt.Errorf("failed to create config file")
	ErrConfigFileRename  = fmt.Errorf("failed to rename temporary config file")
	ErrInvalidLogLevel   = fmt.Errorf("invalid log level")
)

// Hook errors.
var (
	ErrHookExecution = fmt.Errorf("error executing hook")
	ErrHookScript    = fmt.Errorf("hook script error")
)

// ErrInvalidPath is returned when a file or directory path is unusable.
var ErrInvalidPath = fmt.Errorf("invalid path")

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrManifestMissing, KindManifestMissing},
	{ErrManifestInvalid, KindManifestInvalid},
	{ErrArtifactFetchFailed, KindArtifactFetchFailed},
	{ErrArchiveExtractFailed, KindArchiveExtractFailed},
	{ErrConfigMissing, KindConfigMissing},
	{ErrFileCopyFailed, KindFileCopyFailed},
}

// KindOf reports the kind of err. Errors outside the taxonomy are KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if stderrors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Wrap wraps an error with additional context.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Mark attaches a taxonomy sentinel to cause so that KindOf recognizes it
// while the message keeps the cause text.
func Mark(sentinel, cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

// ErrInvalidLogLevelWithDetails wraps ErrInvalidLogLevel with the offending value.
func ErrInvalidLogLevelWithDetails(level string) error {
	return fmt.Errorf("%w: '%s', must be one of: debug, info, warn, error", ErrInvalidLogLevel, level)
}
