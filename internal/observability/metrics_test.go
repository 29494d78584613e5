package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFile(t *testing.T) {
	ProjectsTotal.WithLabelValues("collect", OutcomeOK).Inc()
	SnapshotsTotal.WithLabelValues(OutcomeSkipped).Inc()

	path := filepath.Join(t.TempDir(), "sqeffect.prom")
	require.NoError(t, WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.Contains(text, `sqeffect_projects_total{outcome="ok",stage="collect"}`))
	assert.True(t, strings.Contains(text, "sqeffect_snapshots_total"))
}
