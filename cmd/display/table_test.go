package display

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderPlainOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	Render(&buf, Table{
		Headers: []string{"Site", "Files"},
		Aligns:  []Alignment{AlignLeft, AlignRight},
		Rows:    [][]string{{"FOREST_01", "3"}, {"MEADOW"}},
		Footer:  []string{"Total", "3"},
	})

	out := buf.String()
	assert.Contains(t, out, "SITE")
	assert.Contains(t, out, "FOREST_01")
	assert.Contains(t, out, "MEADOW")
	assert.Contains(t, out, "TOTAL")
	assert.NotContains(t, out, "\x1b[", "pipes get no colour codes")
	assert.True(t, strings.HasPrefix(out, "+"), "plain ASCII borders")
}

func TestRenderNoColumns(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	Render(&buf, Table{})
	assert.Empty(t, buf.String())
}

func TestIsTerminal(t *testing.T) {
	t.Parallel()
	assert.False(t, IsTerminal(&bytes.Buffer{}))
}
