package archive

import (
	"strconv"
	"strings"
)

// CompareVersions compares two Debian version strings and returns -1, 0 or 1
// if a is older than, equal to or newer than b.
//
// A version is [epoch:]upstream_version[-debian_revision]. Epochs compare
// numerically, the remaining parts by alternating runs of non-digit and
// digit characters, with '~' sorting before everything including the empty
// string.
//
// Reference: https://www.debian.org/doc/debian-policy/ch-controlfields.html#s-f-version
func CompareVersions(a, b string) int {
	ae, au, ar := splitVersion(a)
	be, bu, br := splitVersion(b)

	if ae != be {
		if ae < be {
			return -1
		}
		return 1
	}
	if c := verrevcmp(au, bu); c != 0 {
		return c
	}
	return verrevcmp(ar, br)
}

// splitVersion breaks a version string into epoch, upstream version and
// debian revision. A missing epoch is 0, a missing revision is empty.
func splitVersion(v string) (epoch int, upstream, revision string) {
	if i := strings.IndexByte(v, ':'); i >= 0 {
		epoch, _ = strconv.Atoi(v[:i])
		v = v[i+1:]
	}
	if i := strings.LastIndexByte(v, '-'); i >= 0 {
		return epoch, v[:i], v[i+1:]
	}
	return epoch, v, ""
}

// charOrder maps a byte to its sort weight per Debian rules: '~' sorts
// before the end of the string, digits delimit numeric runs, letters sort
// before other printable characters.
func charOrder(c byte) int {
	switch {
	case c == '~':
		return -1
	case c >= '0' && c <= '9':
		return 0
	case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
		return int(c)
	default:
		return int(c) + 256
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// verrevcmp implements the Debian fragment comparison used for both the
// upstream version and the revision.
func verrevcmp(a, b string) int {
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		// Compare the non-digit run.
		for (i < len(a) && !isDigit(a[i])) || (j < len(b) && !isDigit(b[j])) {
			ac, bc := 0, 0
			if i < len(a) {
				ac = charOrder(a[i])
			}
			if j < len(b) {
				bc = charOrder(b[j])
			}
			if ac != bc {
				if ac < bc {
					return -1
				}
				return 1
			}
			i++
			j++
		}

		// Compare the numeric run, ignoring leading zeros.
		for i < len(a) && a[i] == '0' {
			i++
		}
		for j < len(b) && b[j] == '0' {
			j++
		}
		firstDiff := 0
		for i < len(a) && j < len(b) && isDigit(a[i]) && isDigit(b[j]) {
			if firstDiff == 0 {
				firstDiff = int(a[i]) - int(b[j])
			}
			i++
			j++
		}
		if i < len(a) && isDigit(a[i]) {
			return 1
		}
		if j < len(b) && isDigit(b[j]) {
			return -1
		}
		if firstDiff != 0 {
			if firstDiff < 0 {
				return -1
			}
			return 1
		}
	}
	return 0
}
