package scan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/themescan/internal/types"
)

const heroSection = `<div class="hero">{{ section.settings.title }}</div>
{% schema %}
{
  "name": "Hero banner",
  "settings": [{"type": "text", "id": "title"}]
}
{% endschema %}`

func TestParseSchemaName(t *testing.T) {
	name, ok := ParseSchemaName(heroSection)
	require.True(t, ok)
	assert.Equal(t, "Hero banner", name)

	name, ok = ParseSchemaName(`{%- schema -%}{"name": "t:sections.header.name"}{%- endschema -%}`)
	require.True(t, ok)
	assert.Equal(t, "t:sections.header.name", name)

	_, ok = ParseSchemaName(`{% schema %}{"name": "Broken",{% endschema %}`)
	assert.False(t, ok, "malformed schema JSON")

	_, ok = ParseSchemaName(`{% schema %}{"name": {"en": "Hero"}}{% endschema %}`)
	assert.False(t, ok, "non-string name")

	_, ok = ParseSchemaName(`<div>no schema</div>`)
	assert.False(t, ok)
}

func TestNewSectionDescriptors(t *testing.T) {
	keys := []string{"sections/hero.liquid", "sections/footer.liquid", "sections/hero.liquid"}
	contents := map[string]string{
		"sections/hero.liquid":   heroSection,
		"sections/footer.liquid": `{% schema %}not json{% endschema %}`,
	}

	descriptors := NewSectionDescriptors(keys, contents)
	require.Len(t, descriptors, 2)

	assert.Equal(t, "hero", descriptors[0].ID)
	assert.Equal(t, "hero", descriptors[0].FileName)
	assert.Equal(t, "sections/hero.liquid", descriptors[0].Key)
	assert.Equal(t, "Hero banner", descriptors[0].SchemaName)
	assert.Equal(t, "footer", descriptors[1].SchemaName, "falls back to file name")
	assert.Empty(t, descriptors[1].Assignments)
}

func TestSectionReferencesJSON(t *testing.T) {
	asset := types.ScannedAsset{
		Key: "templates/index.json",
		Content: `/*
 * ------------------------------------------------------------
 * IMPORTANT: The contents of this file are auto-generated.
 * ------------------------------------------------------------
 */
{
  "sections": {
    "banner": {"type": "hero", "blocks": {"b1": {"type": "heading"}}},
    "list": {"type": "featured-collection", "settings": {"block_type": "promo"}}
  },
  "order": ["banner", "list"]
}`,
	}

	refs := SectionReferences(asset, types.DefaultMaxJSONDepth)
	assert.ElementsMatch(t, []string{"hero", "heading", "featured-collection", "promo"}, refs)
}

func TestSectionReferencesJSONMalformed(t *testing.T) {
	asset := types.ScannedAsset{Key: "templates/index.json", Content: `{"sections": {`}
	assert.Empty(t, SectionReferences(asset, 50))
}

func TestSectionReferencesDepthBound(t *testing.T) {
	// {"a":{"a":...{"type":"deep"}...}} nested 60 levels
	content := strings.Repeat(`{"a":`, 60) + `{"type":"deep"}` + strings.Repeat(`}`, 60)
	asset := types.ScannedAsset{Key: "templates/deep.json", Content: content}

	assert.Empty(t, SectionReferences(asset, 50))
	assert.Equal(t, []string{"deep"}, SectionReferences(asset, 100))
}

func TestSectionReferencesLiquid(t *testing.T) {
	asset := types.ScannedAsset{
		Key: "layout/theme.liquid",
		Content: `{% section 'header' %}
{%- section "announcement-bar" -%}
{% sections 'footer-group' %}
{% include 'sections/newsletter' %}
{% render "sections/cart-drawer.liquid", cart: cart %}
{% section 'header' %}
{% render 'product-card' %}`,
	}

	refs := SectionReferences(asset, 50)
	assert.ElementsMatch(t, []string{"header", "announcement-bar", "footer-group", "newsletter", "cart-drawer"}, refs)
}

func TestAssignSectionsCompleteness(t *testing.T) {
	descriptors := NewSectionDescriptors([]string{"sections/hero.liquid", "sections/footer.liquid"}, nil)
	AssignSections(descriptors, []types.ScannedAsset{
		{Key: "templates/index.json", Content: `{"sections": {"x": {"type": "image-banner"}}}`},
	}, 50)

	result := flattenDescriptors(descriptors)
	require.Len(t, result, 2)
	for _, d := range result {
		assert.Equal(t, 0, d.AssignmentCount)
		assert.Empty(t, d.Assignments)
	}
	assert.Equal(t, "hero", result[0].FileName)
	assert.Equal(t, "footer", result[1].FileName)
}

func TestAssignSections(t *testing.T) {
	descriptors := NewSectionDescriptors([]string{"sections/hero.liquid", "sections/Footer.liquid"}, nil)
	assets := []types.ScannedAsset{
		{Key: "templates/index.json", Content: `{"sections": {"a": {"type": "hero"}, "b": {"type": "hero"}}}`},
		{Key: "templates/page.json", Content: `{"sections": {"a": {"type": "HERO"}}}`},
		{Key: "layout/theme.liquid", Content: `{% section 'footer' %}`},
		{Key: "snippets/notes.liquid", Content: `the hero of the story`},
	}

	AssignSections(descriptors, assets, 50)

	assert.Equal(t, []string{"templates/index.json", "templates/page.json"}, descriptors[0].Assignments)
	assert.Equal(t, 2, descriptors[0].AssignmentCount)
	assert.Equal(t, []string{"layout/theme.liquid"}, descriptors[1].Assignments)

	// Re-applying the same files changes nothing
	AssignSections(descriptors, assets, 50)
	assert.Equal(t, 2, descriptors[0].AssignmentCount)
	assert.Equal(t, 1, descriptors[1].AssignmentCount)
}

func TestIsSectionAsset(t *testing.T) {
	assert.True(t, IsSectionAsset("sections/hero.liquid"))
	assert.False(t, IsSectionAsset("sections/header-group.json"))
	assert.False(t, IsSectionAsset("sections/nested/hero.liquid"))
	assert.False(t, IsSectionAsset("snippets/hero.liquid"))
	assert.Equal(t, "hero", SectionFileName("sections/hero.liquid"))
}
