package blobstore

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/JedDataScience/RetroAzureBlobMetadataStorage/pkg/errors"
)

// Azure requires metadata keys to be valid C# identifiers.
var metadataKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SanitizeUploadName reduces an uploaded filename to a safe storage key:
// any directory components (browsers may send full paths) are stripped.
func SanitizeUploadName(filename string) (string, error) {
	name := strings.ReplaceAll(filename, `\`, "/")
	name = path.Base(name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", errors.NewInvalidInputError("Empty filename")
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

// ValidateName rejects blob names that could traverse outside the container
// namespace or confuse the provider. Valid names pass through unchanged.
func ValidateName(name string) error {
	if name == "" {
		return errors.NewInvalidInputError("Blob name must not be empty")
	}
	if strings.HasPrefix(name, "/") || strings.Contains(name, `\`) {
		return errors.NewInvalidInputError("Invalid blob name")
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return errors.NewInvalidInputError("Invalid blob name")
		}
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return errors.NewInvalidInputError("Blob name contains control characters")
		}
	}
	return nil
}

// ValidateMetadata checks the provider's key constraints up front so the
// caller gets a 400 instead of an ambiguous provider failure.
func ValidateMetadata(md map[string]string) error {
	for k := range md {
		if !metadataKeyPattern.MatchString(k) {
			return errors.NewInvalidInputError(fmt.Sprintf("Invalid metadata key %q: keys must start with a letter or underscore and contain only letters, digits, and underscores", k))
		}
	}
	return nil
}
