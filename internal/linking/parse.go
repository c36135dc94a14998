package linking

import (
	"regexp"
	"strconv"
	"strings"
)

var userURLPattern = regexp.MustCompile(`user/(\d+)`)

// ParseUserID extracts a Bitrix user id from free-form user input: either
// a bare number or a profile URL containing .../user/<id>/. Returns 0 when
// nothing usable is found.
func ParseUserID(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	if id, err := strconv.Atoi(text); err == nil && id > 0 {
		return id
	}

	if m := userURLPattern.FindStringSubmatch(text); m != nil {
		if id, err := strconv.Atoi(m[1]); err == nil && id > 0 {
			return id
		}
	}
	return 0
}
