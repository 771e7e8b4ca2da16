// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import "strconv"

// MaxPageSize caps page_size query parameters.
const MaxPageSize = 100

// AtoiDefault converts a string to an int using strconv.Atoi.
// If the string is empty or cannot be parsed as an integer,
// it returns the provided default value instead.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// PageParams parses raw page and page_size values, falling back to the
// defaults for missing or non-positive input and capping the size at
// MaxPageSize.
func PageParams(rawPage, rawSize string, defPage, defSize int) (page, size int) {
	page = AtoiDefault(rawPage, defPage)
	if page < 1 {
		page = defPage
	}
	size = AtoiDefault(rawSize, defSize)
	if size < 1 {
		size = defSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}
