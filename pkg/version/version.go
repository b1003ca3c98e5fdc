// Package version provides connector build metadata and AMI protocol
// version parsing.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Connector is the release version of this connector build.
const Connector = "1.0.0"

// bannerPrefix starts the greeting line Asterisk sends after the TCP connect.
const bannerPrefix = "Asterisk Call Manager/"

// UserAgent returns the identification string sent to the dashboard backend.
func UserAgent() string {
	return "FreePBX-Connector/" + Connector
}

// ManagerVersion represents a parsed AMI protocol version from the greeting
// banner. Older Asterisk releases report "major.minor", newer ones add a
// patch component.
type ManagerVersion struct {
	Major uint16
	Minor uint16
	Patch uint16
}

// ParseBanner parses a full AMI greeting line such as
// "Asterisk Call Manager/2.10.5".
func ParseBanner(banner string) (ManagerVersion, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(banner), bannerPrefix)
	if !ok {
		return ManagerVersion{}, fmt.Errorf("not an AMI greeting: %q", banner)
	}
	return Parse(rest)
}

// Parse parses a "major.minor" or "major.minor.patch" version string.
func Parse(s string) (ManagerVersion, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 && len(parts) != 3 {
		return ManagerVersion{}, fmt.Errorf("invalid version %q: expected major.minor[.patch]", s)
	}

	major, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil || parts[0] == "" {
		return ManagerVersion{}, fmt.Errorf("invalid version %q: bad major component", s)
	}

	minor, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil || parts[1] == "" {
		return ManagerVersion{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	var patch uint64
	if len(parts) == 3 {
		patch, err = strconv.ParseUint(parts[2], 10, 16)
		if err != nil || parts[2] == "" {
			return ManagerVersion{}, fmt.Errorf("invalid version %q: bad patch component", s)
		}
	}

	return ManagerVersion{Major: uint16(major), Minor: uint16(minor), Patch: uint16(patch)}, nil
}

// String returns the version as "major.minor" or "major.minor.patch".
func (v ManagerVersion) String() string {
	if v.Patch == 0 {
		return fmt.Sprintf("%d.%d", v.Major, v.Minor)
	}
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// AtLeast reports whether the version is at or above the given major.minor.
// AMI protocol 2.0 shipped with Asterisk 12 and reshaped several event
// payloads, so callers occasionally branch on it.
func (v ManagerVersion) AtLeast(major, minor uint16) bool {
	if v.Major != major {
		return v.Major > major
	}
	return v.Minor >= minor
}
