package application_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ericfisherdev/issuesync/internal/application"
	"github.com/ericfisherdev/issuesync/internal/domain/model"
)

func TestRenderBodyPreview_EmptyInput(t *testing.T) {
	assert.Equal(t, "", application.RenderBodyPreview(""))
	assert.Equal(t, "", application.RenderBodyPreview("  \n"))
}

func TestRenderBodyPreview_ComposedBody(t *testing.T) {
	item := model.DesiredItem{
		Title:     "Add CI",
		Summary:   "Run **tests** on every push",
		EpicID:    "E2",
		DependsOn: []string{"Repo hygiene", "Lint"},
		Estimate:  model.EstimateSmall,
	}

	result := application.RenderBodyPreview(item.ComposeBody("Roadmap"))

	assert.Contains(t, result, "<p><strong>Summary:</strong> Run <strong>tests</strong> on every push</p>")
	assert.Contains(t, result, "<p><strong>Epic:</strong> <code>epic/E2-Testing</code></p>")
	assert.Contains(t, result, "<li>Repo hygiene</li>")
	assert.Contains(t, result, "<li>Lint</li>")
	assert.Contains(t, result, "<p><strong>Estimate:</strong> S</p>")
	assert.Contains(t, result, "<p><strong>Project:</strong> Roadmap</p>")
}

func TestRenderBodyPreview_BlankFieldsReadNone(t *testing.T) {
	result := application.RenderBodyPreview(model.DesiredItem{Title: "Ship"}.ComposeBody("Roadmap"))

	assert.Contains(t, result, "<p><strong>Summary:</strong> <em>none</em></p>")
	assert.Contains(t, result, "<p><strong>Epic:</strong> <em>none</em></p>")
	assert.Contains(t, result, "<p><strong>Depends on:</strong> <em>none</em></p>")
	assert.NotContains(t, result, "<li>")
}

func TestRenderBodyPreview_OtherParagraphsAreMarkdown(t *testing.T) {
	result := application.RenderBodyPreview("Notes: see [docs](https://example.com)")
	assert.Contains(t, result, `<a href="https://example.com"`)
	assert.NotContains(t, result, "<strong>Notes:</strong>")
}

func TestRenderBodyPreview_SanitizesScript(t *testing.T) {
	result := application.RenderBodyPreview("Summary: <script>alert(\"xss\")</script>")
	assert.NotContains(t, result, "<script>")
	assert.Contains(t, result, "<strong>Summary:</strong>")
}
