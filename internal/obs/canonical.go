package obs

import "strings"

// CanonicalPath normalizes a request path for metric labels. Query strings
// are stripped and trailing slashes collapsed so that label cardinality stays
// bounded to the route table.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}
