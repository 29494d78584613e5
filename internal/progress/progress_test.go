package progress

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNilTrackerIsNoop(t *testing.T) {
	var tr *Tracker
	assert.NotPanics(t, func() {
		tr.Tick()
		tr.FinishSuccess()
		tr.FinishSkipped("exists")
		tr.FinishError(errors.New("boom"))
	})
}

func TestQuietFactory(t *testing.T) {
	var f Factory = Quiet{}
	assert.Nil(t, f.Spinner("ratis"))
	assert.Nil(t, f.Bar("ratis", 3))
}

func TestTrackerMessages(t *testing.T) {
	var buf bytes.Buffer
	tr := newTracker("ratis snapshots", 2, &buf)
	tr.Tick()
	tr.FinishSkipped("output exists")
	assert.Contains(t, buf.String(), "ratis snapshots skipped (output exists)")

	buf.Reset()
	sp := newSpinner("ratis events", &buf)
	sp.Tick()
	sp.FinishError(errors.New("HTTP 503"))
	assert.Contains(t, buf.String(), "ratis events error: HTTP 503")
}
