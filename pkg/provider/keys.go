package provider

import "strings"

// NormalizeKey returns key with exactly one leading slash.
//
// Nothing else is rewritten: ".." segments, doubled inner slashes and
// trailing slashes are the caller's responsibility. A trailing slash denotes
// a directory.
func NormalizeKey(key string) string {
	return "/" + trimLeadingSlashes(key)
}

// IsRootKey reports whether key denotes the storage root ("" or "/").
func IsRootKey(key string) bool {
	return NormalizeKey(key) == "/"
}

// NormalizePrefix returns a normalized key that ends with a slash, as
// required for directory listings. An empty prefix is the root.
func NormalizePrefix(prefix string) string {
	p := NormalizeKey(prefix)
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// BaseName returns the last path segment of key, or key itself when it has
// no separator.
func BaseName(key string) string {
	idx := strings.LastIndex(key, "/")
	if idx < 0 {
		return key
	}
	if name := key[idx+1:]; name != "" {
		return name
	}
	return key
}

func trimLeadingSlashes(key string) string {
	return strings.TrimLeft(key, "/")
}
