package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nota/internal/core"
)

func TestLoadCategories(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		cats, err := LoadCategories("")
		require.NoError(t, err)
		assert.Equal(t, core.DefaultCategories, cats)
	})

	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "categories.yaml")
		yml := "categories:\n  - Fashion\n  - \"  Pets \"\n  - fashion\n  - \"\"\n  - Transport\n"
		require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

		cats, err := LoadCategories(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"Fashion", "Pets", "Transport"}, cats)
	})

	t.Run("empty list", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "categories.yaml")
		require.NoError(t, os.WriteFile(path, []byte("categories: []\n"), 0o600))
		_, err := LoadCategories(path)
		assert.Error(t, err)
	})

	t.Run("bad yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "categories.yaml")
		require.NoError(t, os.WriteFile(path, []byte("categories: [a, b"), 0o600))
		_, err := LoadCategories(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadCategories(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
