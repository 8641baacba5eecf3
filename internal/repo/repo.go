package repo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrNotFound means no count has ever been stored.
	ErrNotFound = errors.New("pulse count not found")
	// ErrCorrupt means stored content is not a decimal pulse count.
	ErrCorrupt = errors.New("pulse count corrupt")
)

// CountStore persists the cumulative pulse count.
type CountStore interface {
	// Load returns the last stored count.
	Load(ctx context.Context) (uint64, error)
	// Save replaces the stored count.
	Save(ctx context.Context, count uint64) error
}

// ParseCount decodes the stored representation: decimal ASCII digits with
// no delimiters. Surrounding whitespace is tolerated.
func ParseCount(raw []byte) (uint64, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrCorrupt)
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrCorrupt, s)
	}
	return n, nil
}

// FormatCount encodes a count for storage.
func FormatCount(n uint64) []byte {
	return strconv.AppendUint(nil, n, 10)
}
