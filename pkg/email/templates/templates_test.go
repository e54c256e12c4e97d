package templates_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indexnowstudio/jobs/pkg/email/templates"
)

func TestLookup(t *testing.T) {
	t.Parallel()

	for _, name := range templates.Names() {
		tpl, ok := templates.Lookup(name, templates.Data{"customer_name": "Ana", "order_id": "ORD-1"})
		require.True(t, ok, name)

		html, err := templates.Render(context.Background(), tpl)
		require.NoError(t, err, name)
		assert.Contains(t, html, "Hi Ana,", name)
		assert.Contains(t, html, "<!DOCTYPE html>", name)
	}

	_, ok := templates.Lookup("nope", nil)
	assert.False(t, ok)
}

func TestRender_EscapesData(t *testing.T) {
	t.Parallel()

	tpl, _ := templates.Lookup(templates.OrderExpired, templates.Data{"order_id": "<script>x</script>"})
	html, err := templates.Render(context.Background(), tpl)
	require.NoError(t, err)

	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")
	assert.Contains(t, html, "no payment arrived within 24 hours")
}

func TestNames(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{
		"billing_confirmation", "order_expired", "package_activated", "payment_received", "quota_reset",
	}, templates.Names())
}
