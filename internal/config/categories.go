package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"nota/internal/core"
)

// categoriesFile is the YAML layout of CATEGORIES_FILE:
//
//	categories:
//	  - Fashion
//	  - Food & Drink
type categoriesFile struct {
	Categories []string `yaml:"categories"`
}

// LoadCategories reads the category list from path. An empty path yields
// core.DefaultCategories. Blank and duplicate labels are dropped.
func LoadCategories(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return append([]string(nil), core.DefaultCategories...), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read categories file: %w", err)
	}
	var f categoriesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse categories file %s: %w", path, err)
	}

	out := make([]string, 0, len(f.Categories))
	for _, c := range f.Categories {
		c = strings.TrimSpace(c)
		if c == "" || core.IsCategory(out, c) {
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, errors.New("categories file lists no categories")
	}
	return out, nil
}
