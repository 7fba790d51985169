package extract

import (
	"strconv"
	"strings"
)

// pathStep is one resolved segment of a dotted path: a map key, an array
// index, or a key followed by indexes ("events[0]" is key then index).
type pathStep struct {
	key     string
	indexes []int
}

// parsePath splits a dotted/indexed path expression such as
// "events[0].properties.name" into steps. Malformed bracket expressions
// keep the segment as a literal key, matching how loose real-world
// configurations behave.
func parsePath(path string) []pathStep {
	segments := strings.Split(path, ".")
	steps := make([]pathStep, 0, len(segments))

	for _, seg := range segments {
		if seg == "" {
			continue
		}
		open := strings.Index(seg, "[")
		if open < 0 || !strings.HasSuffix(seg, "]") {
			steps = append(steps, pathStep{key: seg})
			continue
		}

		key := seg[:open]
		rest := seg[open:]
		var indexes []int
		ok := true
		for len(rest) > 0 {
			if rest[0] != '[' {
				ok = false
				break
			}
			close := strings.Index(rest, "]")
			if close < 0 {
				ok = false
				break
			}
			n, err := strconv.Atoi(rest[1:close])
			if err != nil || n < 0 {
				ok = false
				break
			}
			indexes = append(indexes, n)
			rest = rest[close+1:]
		}
		if !ok {
			steps = append(steps, pathStep{key: seg})
			continue
		}
		steps = append(steps, pathStep{key: key, indexes: indexes})
	}

	return steps
}

// Resolve walks a decoded JSON value along the path. A step that misses —
// absent key, out-of-range index, wrong type — returns (nil, false); it
// never panics on any input shape.
func Resolve(value interface{}, path string) (interface{}, bool) {
	current := value
	for _, step := range parsePath(path) {
		if step.key != "" {
			m, ok := current.(map[string]interface{})
			if !ok {
				return nil, false
			}
			current, ok = m[step.key]
			if !ok {
				return nil, false
			}
		}
		for _, idx := range step.indexes {
			arr, ok := current.([]interface{})
			if !ok || idx >= len(arr) {
				return nil, false
			}
			current = arr[idx]
		}
	}
	return current, true
}
