package db

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/cmgoffena13/file-loader/internal/domain"
)

// RowHash computes a stable 64-bit digest of a record's field values, used
// by the merge to distinguish real updates from reprocessed identical rows.
// Keys are sorted so field order never changes the hash.
func RowHash(record domain.Record) int64 {
	keys := make([]string, 0, len(record))
	for key := range record {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, key := range keys {
		parts[i] = hashString(record[key])
	}
	return int64(xxhash.Sum64String(strings.Join(parts, "|")))
}

func hashString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
