package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrVersionTooOld is returned when the project requires a newer envforge.
var ErrVersionTooOld = errors.New("envforge version too old")

// Version represents a release version.
type Version struct {
	Major int
	Minor int
	Patch int
}

// String returns the version as a string.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare compares two versions.
// Returns -1 if v < other, 0 if v == other, 1 if v > other.
func (v Version) Compare(other Version) int {
	if v.Major != other.Major {
		if v.Major < other.Major {
			return -1
		}
		return 1
	}
	if v.Minor != other.Minor {
		if v.Minor < other.Minor {
			return -1
		}
		return 1
	}
	if v.Patch != other.Patch {
		if v.Patch < other.Patch {
			return -1
		}
		return 1
	}
	return 0
}

// ParseVersion parses "MAJOR[.MINOR[.PATCH]]" with an optional "v" prefix.
// A pre-release or build suffix on the last component is ignored.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	if s == "" {
		return Version{}, fmt.Errorf("empty version")
	}
	parts := strings.SplitN(s, ".", 3)
	nums := make([]int, 3)
	for i, part := range parts {
		if i == len(parts)-1 {
			if cut := strings.IndexAny(part, "-+"); cut >= 0 {
				part = part[:cut]
			}
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("invalid version %q", s)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// CheckMinVersion fails with ErrVersionTooOld when the min_version core
// option asks for a newer release than current.
func (c *Config) CheckMinVersion(current Version) error {
	raw, err := c.core.GetString("min_version")
	if err != nil {
		return err
	}
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	required, err := ParseVersion(raw)
	if err != nil {
		return fmt.Errorf("min_version: %w", err)
	}
	if current.Compare(required) < 0 {
		return fmt.Errorf("%w: project requires %s, running %s", ErrVersionTooOld, required, current)
	}
	return nil
}
