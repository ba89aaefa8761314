package messages

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	LocalIDPrefix    = "local-"
	composingSuffix  = "-composing"
	diagnosticSuffix = "-diagnostic"
)

// LocalID builds a client-side id from a high resolution clock read.
func LocalID(now time.Time) string {
	return fmt.Sprintf("%s%d", LocalIDPrefix, now.UnixNano())
}

func PlaceholderID(localID string) string {
	return localID + composingSuffix
}

func DiagnosticID(localID string) string {
	return localID + diagnosticSuffix
}

func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// CompareIDs orders ids numerically when both are integers and
// lexicographically otherwise. It returns -1, 0 or 1.
func CompareIDs(a, b string) int {
	ai, aErr := strconv.ParseInt(a, 10, 64)
	bi, bErr := strconv.ParseInt(b, 10, 64)
	if aErr == nil && bErr == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}
