package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// ErrNotFound is returned when the catalog file does not exist
var ErrNotFound = errors.New("catalog file not found")

// Catalog is the product inventory handed verbatim to the generator. Its
// content is never parsed.
type Catalog struct {
	Path    string
	Content string
}

// Load reads the catalog at path
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	if !utf8.Valid(data) {
		return nil, fmt.Errorf("catalog %s is not valid UTF-8", path)
	}

	content := strings.TrimPrefix(string(data), "\ufeff")
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("catalog %s is empty", path)
	}

	return &Catalog{Path: path, Content: content}, nil
}

// Size returns the catalog length in bytes
func (c *Catalog) Size() int {
	return len(c.Content)
}
