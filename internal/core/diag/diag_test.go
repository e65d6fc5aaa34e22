package diag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnostic_Message(t *testing.T) {
	d := Diagnostic{Template: MsgUnresolved, Params: []string{"IService", "Consumer"}}
	assert.Equal(t, "unable to resolve IService in Consumer", d.Message())
}

func TestLocation_String(t *testing.T) {
	assert.Equal(t, "a.yaml:3:7", Location{File: "a.yaml", Line: 3, Column: 7}.String())
	assert.Equal(t, "a.yaml", Location{File: "a.yaml"}.String())
	assert.Equal(t, "<unknown>", Location{}.String())
}

func TestCollector_DefaultSeverity(t *testing.T) {
	c := NewCollector(nil)
	c.Report(KindUnableToResolve, Location{Line: 1}, "", MsgUnresolved, "A", "B")
	c.Report(KindOverriddenBinding, Location{Line: 2}, "", MsgOverridden, "A", "x")

	items := c.Items()
	require.Len(t, items, 2)
	assert.Equal(t, SeverityError, items[0].Severity)
	assert.Equal(t, SeverityWarning, items[1].Severity)
	assert.True(t, c.HasFatal())
	assert.Equal(t, 1, c.Count(SeverityWarning))
}

func TestCollector_Dedup(t *testing.T) {
	c := NewCollector(nil)
	loc := Location{File: "a", Line: 4, Column: 2}
	assert.True(t, c.Report(KindCyclicDependency, loc, "R1", MsgCycle, "A <-- B <-- A"))
	assert.False(t, c.Report(KindCyclicDependency, loc, "R2", MsgCycle, "A <-- B <-- A"))
	assert.True(t, c.Report(KindCyclicDependency, loc, "R2", MsgCycle, "B <-- C <-- B"))
	assert.Equal(t, 2, c.Len())
}

func TestCollector_Overrides(t *testing.T) {
	c := NewCollector(Overrides{
		KindOverriddenBinding: SeverityError,
		KindMetadataDefect:    SeverityHidden,
	})
	c.Report(KindOverriddenBinding, Location{}, "", MsgOverridden, "A", "x")
	c.Report(KindMetadataDefect, Location{}, "", MsgUnused, "A")

	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, SeverityError, items[0].Severity)
	assert.True(t, c.HasFatal())
}

func TestCollector_PreservesOrder(t *testing.T) {
	c := NewCollector(nil)
	for i := 1; i <= 5; i++ {
		c.Report(KindMetadataDefect, Location{Line: i}, "", MsgUnused, "X")
	}
	for i, d := range c.Items() {
		assert.Equal(t, i+1, d.Location.Line)
	}
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want Severity
	}{
		{"error", SeverityError},
		{"Warning", SeverityWarning},
		{"warn", SeverityWarning},
		{"info", SeverityInfo},
		{"hidden", SeverityHidden},
	}
	for _, tt := range tests {
		got, err := ParseSeverity(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseSeverity("fatal")
	assert.ErrorIs(t, err, ErrUnknownSeverity)
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("cyclic_dependency")
	assert.True(t, ok)
	assert.Equal(t, KindCyclicDependency, k)

	_, ok = ParseKind("nope")
	assert.False(t, ok)
}
