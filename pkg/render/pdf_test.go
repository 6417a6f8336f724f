package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatchai/reportforge/pkg/domain"
)

func TestPDFRenderer_ProducesDocument(t *testing.T) {
	r := NewPDFRenderer()

	report := "# Findings\n\nRecent survey data shows three new candidate planets.\n\n**Observations**\n\nTransit depths were consistent across campaigns."
	doc, err := r.Render(report, "exoplanets")
	require.NoError(t, err)
	require.NotEmpty(t, doc)
	assert.Equal(t, "%PDF", string(doc[:4]))
}

func TestPDFRenderer_EmptyReport(t *testing.T) {
	r := NewPDFRenderer()

	_, err := r.Render("   \n\n  ", "exoplanets")
	require.Error(t, err)

	var renderErr *domain.RenderError
	assert.ErrorAs(t, err, &renderErr)
}
