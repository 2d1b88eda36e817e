// Package version provides build information and event feed protocol
// version helpers.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Build information, set with -ldflags "-X".
var (
	Version = "dev"
	Commit  = ""
)

// Current is the event feed protocol version implemented by this module.
const Current = "1.0"

// ErrIncompatible is returned for a client version with another major.
var ErrIncompatible = errors.New("incompatible feed protocol version")

// subprotocolPrefix prefixes the websocket subprotocol name.
const subprotocolPrefix = "tether.v"

// FeedVersion represents a parsed "major.minor" protocol version.
type FeedVersion struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (FeedVersion, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return FeedVersion{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	major, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil || parts[0] == "" {
		return FeedVersion{}, fmt.Errorf("invalid version %q: bad major component", s)
	}

	minor, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil || parts[1] == "" {
		return FeedVersion{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return FeedVersion{Major: uint16(major), Minor: uint16(minor)}, nil
}

// String returns the version as "major.minor".
func (v FeedVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible returns true if the other version has the same major version.
func (v FeedVersion) Compatible(other FeedVersion) bool {
	return v.Major == other.Major
}

// Check validates a "major.minor" version requested by a feed client
// against Current.
func Check(requested string) error {
	v, err := Parse(requested)
	if err != nil {
		return err
	}
	current, _ := Parse(Current)
	if !current.Compatible(v) {
		return fmt.Errorf("%w: client %s, server %s", ErrIncompatible, v, current)
	}
	return nil
}

// CheckSubprotocols reports an error when offered names tether
// subprotocols and none of them is supported. Offers without any tether
// subprotocol pass.
func CheckSubprotocols(offered []string) error {
	current, _ := Parse(Current)
	var seen []string
	for _, proto := range offered {
		major, err := MajorFromSubprotocol(proto)
		if err != nil {
			continue
		}
		if current.Compatible(FeedVersion{Major: major}) {
			return nil
		}
		seen = append(seen, proto)
	}
	if len(seen) == 0 {
		return nil
	}
	return fmt.Errorf("%w: offered %s, server %s", ErrIncompatible, strings.Join(seen, ", "), current)
}

// Subprotocol returns the websocket subprotocol for a major version:
// "tether.vN".
func Subprotocol(major uint16) string {
	return fmt.Sprintf("%s%d", subprotocolPrefix, major)
}

// MajorFromSubprotocol extracts the major version from a subprotocol name.
func MajorFromSubprotocol(proto string) (uint16, error) {
	if !strings.HasPrefix(proto, subprotocolPrefix) {
		return 0, fmt.Errorf("not a tether subprotocol: %q", proto)
	}

	suffix := proto[len(subprotocolPrefix):]
	if suffix == "" {
		return 0, fmt.Errorf("empty major version in subprotocol: %q", proto)
	}

	major, err := strconv.ParseUint(suffix, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid major version in subprotocol %q: %w", proto, err)
	}

	return uint16(major), nil
}

// SupportedSubprotocols returns the subprotocols for all supported major
// versions. Currently only major version 1.
func SupportedSubprotocols() []string {
	current, _ := Parse(Current)
	return []string{Subprotocol(current.Major)}
}

// String returns a one-line build description for -version output.
func String() string {
	if Commit == "" {
		return fmt.Sprintf("tether %s (feed protocol %s)", Version, Current)
	}
	return fmt.Sprintf("tether %s (%s, feed protocol %s)", Version, Commit, Current)
}
