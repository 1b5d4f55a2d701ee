package extensions

import (
	"strconv"
	"strings"
)

// CompareVersions compares two semantic versions and returns -1, 0 or 1.
// A leading "v" is ignored, missing components count as zero and a
// pre-release sorts before the matching release ("1.2.0-beta" < "1.2.0").
// Build metadata is ignored.
func CompareVersions(a, b string) int {
	aCore, aPre := splitVersion(a)
	bCore, bPre := splitVersion(b)

	aParts := parseVersionParts(aCore)
	bParts := parseVersionParts(bCore)
	for i := range 3 {
		if aParts[i] > bParts[i] {
			return 1
		}
		if aParts[i] < bParts[i] {
			return -1
		}
	}

	switch {
	case aPre == bPre:
		return 0
	case aPre == "":
		return 1
	case bPre == "":
		return -1
	}
	return comparePrerelease(aPre, bPre)
}

// IsNewer reports whether candidate is strictly newer than current.
func IsNewer(candidate, current string) bool {
	if strings.TrimSpace(candidate) == "" {
		return false
	}
	return CompareVersions(candidate, current) > 0
}

func splitVersion(v string) (core, pre string) {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(strings.TrimPrefix(v, "v"), "V")
	if idx := strings.IndexByte(v, '+'); idx >= 0 {
		v = v[:idx]
	}
	if idx := strings.IndexByte(v, '-'); idx >= 0 {
		return v[:idx], v[idx+1:]
	}
	return v, ""
}

func parseVersionParts(v string) [3]int {
	var parts [3]int
	for i, seg := range strings.SplitN(v, ".", 3) {
		if n, err := strconv.Atoi(seg); err == nil {
			parts[i] = n
		}
	}
	return parts
}

// comparePrerelease follows semver precedence: dot separated identifiers,
// numeric ones compared numerically and ranked below alphanumeric ones.
func comparePrerelease(a, b string) int {
	aIDs := strings.Split(a, ".")
	bIDs := strings.Split(b, ".")

	for i := 0; i < len(aIDs) && i < len(bIDs); i++ {
		an, aErr := strconv.Atoi(aIDs[i])
		bn, bErr := strconv.Atoi(bIDs[i])
		switch {
		case aErr == nil && bErr == nil:
			if an != bn {
				if an < bn {
					return -1
				}
				return 1
			}
		case aErr == nil:
			return -1
		case bErr == nil:
			return 1
		default:
			if c := strings.Compare(aIDs[i], bIDs[i]); c != 0 {
				return c
			}
		}
	}

	switch {
	case len(aIDs) < len(bIDs):
		return -1
	case len(aIDs) > len(bIDs):
		return 1
	}
	return 0
}
