package recompose

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseRanges parses "1-3, 4, 6-9" into page ranges. An empty string yields nil.
func ParseRanges(s string) ([]PageRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []PageRange
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		startStr, endStr, isSpan := strings.Cut(field, "-")
		start, err := strconv.Atoi(strings.TrimSpace(startStr))
		if err != nil {
			return nil, invalidRangeSyntax(field)
		}
		end := start
		if isSpan {
			if end, err = strconv.Atoi(strings.TrimSpace(endStr)); err != nil {
				return nil, invalidRangeSyntax(field)
			}
		}
		out = append(out, PageRange{Start: start, End: end})
	}
	return out, nil
}

func invalidRangeSyntax(field string) *Error {
	return &Error{
		Kind:    ErrInvalidRange,
		Op:      opSplitRanges,
		Message: fmt.Sprintf("Could not read page range %q. Use a list such as 1-3,5.", field),
	}
}
