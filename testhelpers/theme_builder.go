package testhelpers

// StandardTheme returns a small theme exercising every scan type:
//
//   - metafields: custom.featured is used (quoted in product.json), custom.color is not
//     (card.liquid only mentions custom.colorful, the locale file is never scanned)
//   - metaobjects: designer is defined but unused
//   - menus: main-menu (linklists in header.liquid) and footer (menu setting in
//     settings_data.json) are used, test is not
//   - templates: alternate is used by card.liquid, contact is not
//   - sections: header, footer and hero are assigned; unused is not; hero has a
//     malformed schema
func StandardTheme() *FakeSource {
	return NewFakeSource().
		WithAsset("layout/theme.liquid", `{% section 'header' %}{{ content_for_layout }}{% section 'footer' %}`).
		WithAsset("sections/header.liquid", `{% for link in linklists.main-menu.links %}{% endfor %}
{% schema %}{"name": "Header"}{% endschema %}`).
		WithAsset("sections/footer.liquid", `{% schema %}{"name": "Footer"}{% endschema %}`).
		WithAsset("sections/hero.liquid", `{{ section.settings.title }}{% schema %}{"name": "Hero"{% endschema %}`).
		WithAsset("sections/unused.liquid", `{% schema %}{"name": "Unused"}{% endschema %}`).
		WithAsset("templates/index.json", `{"sections": {"hero": {"type": "hero"}}, "order": ["hero"]}`).
		WithAsset("templates/product.json", `{"sections":{"main":{"settings":{"color_scheme":"custom.featured"}}}}`).
		WithAsset("templates/product.alternate.json", `{"sections": {}}`).
		WithAsset("templates/page.contact.json", `{"sections": {}}`).
		WithAsset("snippets/card.liquid", `{{ product.metafields.custom.colorful }} {% if template.suffix == 'alternate' %}{% endif %}`).
		WithAsset("config/settings_data.json", `{"current": {"sections": {"footer": {"type": "footer", "settings": {"menu": "footer"}}}}}`).
		WithAsset("locales/en.default.json", `{"general": {"menu": "main-menu", "text": "custom.color"}}`).
		WithAsset("assets/logo.png", "").
		WithMetafield("PRODUCT", "custom", "featured").
		WithMetafield("PRODUCT", "custom", "color").
		WithMetafield("COLLECTION", "custom", "featured").
		WithMetaobjectTypes("designer").
		WithMenu("main-menu", "Main menu").
		WithMenu("footer", "Footer").
		WithMenu("test", "Test")
}
