package catalog

import (
	"fmt"

	"github.com/hashicorp/go-version"
)

// ValidateVersion reports whether v parses as a version string.
func ValidateVersion(v string) error {
	if _, err := version.NewVersion(v); err != nil {
		return fmt.Errorf("invalid version %q: %w", v, err)
	}
	return nil
}

// CompareVersions returns -1, 0 or 1 as a is older than, equal to or newer
// than b.
func CompareVersions(a, b string) (int, error) {
	va, err := version.NewVersion(a)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", a, err)
	}
	vb, err := version.NewVersion(b)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", b, err)
	}
	return va.Compare(vb), nil
}

// UpdateAvailable reports whether latest is newer than installed. Versions
// that do not parse (e.g. "latest") never report an update.
func UpdateAvailable(installed, latest string) bool {
	if installed == "" || latest == "" {
		return false
	}
	cmp, err := CompareVersions(installed, latest)
	return err == nil && cmp < 0
}
