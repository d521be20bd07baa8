package model

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed options.yaml
var defaultCatalog []byte

// Catalog is the ordered, read-only list of option groups the wizard walks through.
type Catalog struct {
	groups [][]string
}

// NewCatalog validates groups and returns a catalog holding its own copy of them.
func NewCatalog(groups [][]string) (*Catalog, error) {
	if len(groups) == 0 {
		return nil, ErrEmptyCatalog
	}
	copied := make([][]string, len(groups))
	for i, group := range groups {
		if len(group) == 0 {
			return nil, fmt.Errorf("group %d has no options", i)
		}
		for j, label := range group {
			if strings.TrimSpace(label) == "" {
				return nil, fmt.Errorf("group %d option %d has an empty label", i, j)
			}
		}
		copied[i] = append([]string(nil), group...)
	}
	return &Catalog{groups: copied}, nil
}

// ParseCatalog decodes a list of lists of labels. JSON input is accepted as well,
// since it is valid YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var groups [][]string
	if err := yaml.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("error parsing catalog: %w", err)
	}
	return NewCatalog(groups)
}

// LoadCatalog reads the catalog at path, or the built-in one when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// Len returns the number of groups.
func (c *Catalog) Len() int {
	return len(c.groups)
}

// Group returns a copy of the labels of group i, or nil when i is out of range.
func (c *Catalog) Group(i int) []string {
	if i < 0 || i >= len(c.groups) {
		return nil
	}
	return append([]string(nil), c.groups[i]...)
}

// Label returns the label of option o in group g.
func (c *Catalog) Label(g, o int) (string, bool) {
	if g < 0 || g >= len(c.groups) || o < 0 || o >= len(c.groups[g]) {
		return "", false
	}
	return c.groups[g][o], true
}
