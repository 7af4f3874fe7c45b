package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clockify-sync/internal/domain"
)

func TestDefaultTable(t *testing.T) {
	c := Default()
	cases := map[string]domain.Category{
		"Photo Editing Batch 1": domain.CategoryPhotoEditing,
		"Spring Clipping":       domain.CategoryClipping,
		"Warehouse Build":       domain.CategoryBuilding,
		"Misc Task":             domain.CategoryProduction,
		"Holiday Clip":          domain.CategoryClipping,
		"VIDEO EDITING":         domain.CategoryPhotoEditing,
		"":                      domain.CategoryProduction,
	}
	for name, want := range cases {
		assert.Equal(t, want, c.Classify(name), name)
	}
}

func TestFirstMatchingRuleWins(t *testing.T) {
	c := Default()
	// matches both photo/editing and clip; photo/editing is checked first
	assert.Equal(t, domain.CategoryPhotoEditing, c.Classify("Clip Photo Retouch"))
	// matches clip and build; clip is checked first
	assert.Equal(t, domain.CategoryClipping, c.Classify("Build Clips"))
}

func TestParse(t *testing.T) {
	c, err := Parse("building=build; clipping=clip,cut", "other")
	require.NoError(t, err)
	require.Len(t, c.Rules, 2)
	assert.Equal(t, domain.Category("building"), c.Classify("Build Clips"))
	assert.Equal(t, domain.Category("clipping"), c.Classify("Final CUT"))
	assert.Equal(t, domain.Category("other"), c.Classify("Misc"))

	_, err = Parse("nokeywords=", "other")
	assert.Error(t, err)
	_, err = Parse("clipping=clip", "")
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
default: production
rules:
  - category: clipping
    keywords: [Clip]
  - category: photo-editing
    keywords: [photo]
`), 0o644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryClipping, c.Classify("Photo Clip"))
	assert.Equal(t, domain.CategoryProduction, c.Classify("Misc"))
}
