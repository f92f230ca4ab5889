// ABOUTME: Parser for call group lists such as "1,3-5" into a 64-bit membership mask
// ABOUTME: Also renders a mask back into its canonical list form for status output

package definition

import (
	"fmt"
	"strconv"
	"strings"
)

const maxGroup = 63

// ParseGroups converts a comma separated list of group numbers and ranges
// into a bitmask. An empty string yields no groups.
func ParseGroups(s string) (uint64, error) {
	var mask uint64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		lo, hi := part, part
		if i := strings.IndexByte(part, '-'); i >= 0 {
			lo, hi = strings.TrimSpace(part[:i]), strings.TrimSpace(part[i+1:])
		}

		start, err := parseGroupNumber(lo)
		if err != nil {
			return 0, err
		}
		end, err := parseGroupNumber(hi)
		if err != nil {
			return 0, err
		}
		if start > end {
			start, end = end, start
		}
		for n := start; n <= end; n++ {
			mask |= 1 << n
		}
	}
	return mask, nil
}

func parseGroupNumber(s string) (uint, error) {
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("group %q is not a number", s)
	}
	if n > maxGroup {
		return 0, fmt.Errorf("group %d out of range 0-%d", n, maxGroup)
	}
	return uint(n), nil
}

// FormatGroups renders a mask as a comma separated list with ranges collapsed.
func FormatGroups(mask uint64) string {
	var parts []string
	for n := uint(0); n <= maxGroup; n++ {
		if mask&(1<<n) == 0 {
			continue
		}
		end := n
		for end < maxGroup && mask&(1<<(end+1)) != 0 {
			end++
		}
		if end == n {
			parts = append(parts, strconv.FormatUint(uint64(n), 10))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", n, end))
		}
		n = end
	}
	return strings.Join(parts, ",")
}
