package cache

import "strconv"

// KeyItem returns the cache key of a catalog item.
func KeyItem(ident string) string { return "item:" + ident }

// KeyProvider returns the cache key of a catalog provider.
func KeyProvider(ident string) string { return "provider:" + ident }

// KeyReport returns the cache key of a caja report for a date range at a generation.
func KeyReport(gen int64, from, to string) string {
	return "report:" + strconv.FormatInt(gen, 10) + ":" + from + ":" + to
}
