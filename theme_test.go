package relay_test

import (
	"testing"

	"github.com/fwojciec/relay"
	"github.com/stretchr/testify/assert"
)

func TestDefaultTheme(t *testing.T) {
	t.Parallel()

	theme := relay.DefaultTheme()

	assert.Equal(t, 3, theme.Loading)
	assert.Equal(t, 2, theme.Completed)
	assert.Equal(t, 1, theme.Failed)
	assert.Equal(t, 8, theme.Muted)
	assert.Equal(t, 0, theme.CodeBg)
	assert.Equal(t, 5, theme.Accent)
}

func TestTheme_StatusColor(t *testing.T) {
	t.Parallel()

	theme := relay.DefaultTheme()

	assert.Equal(t, theme.Loading, theme.StatusColor(relay.StatusLoading))
	assert.Equal(t, theme.Completed, theme.StatusColor(relay.StatusCompleted))
	assert.Equal(t, theme.Failed, theme.StatusColor(relay.StatusFailed))
}
