package communication

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderOrdersVariables(t *testing.T) {
	tpl, ok := LookupTemplate(TemplateCutoffDay)
	require.True(t, ok)

	vars, err := tpl.Render(map[string]string{
		"cutoffDate":        "2026-03-15",
		"name":              "Ana",
		"subscriptionLabel": "Starlink Residencial",
		"ignored":           "x",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"1": "Ana", "2": "Starlink Residencial", "3": "2026-03-15"}, vars)
}

func TestRenderReportsBlankVariables(t *testing.T) {
	tpl, _ := LookupTemplate(TemplateReminder3Days)

	_, err := tpl.Render(map[string]string{"name": "  "})
	assert.EqualError(t, err, "missing template variables: name, dueDate")
}

func TestLookupUnknownTemplate(t *testing.T) {
	_, ok := LookupTemplate("welcome")
	assert.False(t, ok)
	assert.Len(t, TemplateNames(), 3)
}
