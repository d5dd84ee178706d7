package storage

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var (
	ErrDisabled        = errors.New("storage disabled")
	ErrUnknownCategory = errors.New("unknown category")
)

// Category names a class of notifications a chat can subscribe to.
type Category string

const (
	CategoryLive      Category = "live"
	CategoryNotable   Category = "notable"
	CategoryThumbnail Category = "thumbnail"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryLive, CategoryNotable, CategoryThumbnail}

func (c Category) Valid() bool { return slices.Contains(Categories, c) }

// ParseCategory accepts a category name case-insensitively.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
