package versioning

import (
	"fmt"
	"regexp"
	"runtime"
	"strconv"
)

// APIVersion is the semantic version of the notifications API.
type APIVersion struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

func (v APIVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or 1 as v is older, equal or newer than other.
func (v APIVersion) Compare(other APIVersion) int {
	for _, d := range [3]int{v.Major - other.Major, v.Minor - other.Minor, v.Patch - other.Patch} {
		switch {
		case d < 0:
			return -1
		case d > 0:
			return 1
		}
	}
	return 0
}

// Supports reports whether v includes a feature introduced in since.
func (v APIVersion) Supports(since APIVersion) bool {
	return v.Compare(since) >= 0
}

var (
	V1_0_0 = APIVersion{Major: 1}
	// V1_1_0 adds paged notification history.
	V1_1_0 = APIVersion{Major: 1, Minor: 1}
)

var (
	CurrentVersion          = V1_1_0
	MinimumSupportedVersion = V1_0_0
)

var versionPattern = regexp.MustCompile(`^v?(\d+)(?:\.(\d+))?(?:\.(\d+))?$`)

// ParseVersion accepts "1", "1.1", "1.1.0" and a leading "v".
func ParseVersion(s string) (APIVersion, error) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return APIVersion{}, fmt.Errorf("invalid version format: %q", s)
	}
	var parts [3]int
	for i, raw := range m[1:] {
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return APIVersion{}, fmt.Errorf("invalid version component %q: %w", raw, err)
		}
		parts[i] = n
	}
	return APIVersion{Major: parts[0], Minor: parts[1], Patch: parts[2]}, nil
}

// IsSupported reports whether the server can answer requests for v.
func IsSupported(v APIVersion) bool {
	return v.Compare(MinimumSupportedVersion) >= 0 && v.Compare(CurrentVersion) <= 0
}

// SupportedRange renders the accepted range for response headers.
func SupportedRange() string {
	return MinimumSupportedVersion.String() + " - " + CurrentVersion.String()
}

// BuildInfo describes the running binary.
type BuildInfo struct {
	API       string `json:"api_version"`
	Build     string `json:"build_version"`
	Commit    string `json:"git_commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version"`
}

// NewBuildInfo fills the API and Go versions around the given build stamps.
func NewBuildInfo(build, commit, buildTime string) BuildInfo {
	return BuildInfo{
		API:       CurrentVersion.String(),
		Build:     build,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
	}
}
