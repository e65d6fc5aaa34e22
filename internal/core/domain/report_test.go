package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/composer/internal/core/composer"
	"github.com/artpar/composer/internal/core/diag"
)

func TestNewReport_Valid(t *testing.T) {
	res := composer.Result{
		Name:    "cats",
		Success: false,
		Roots: []composer.RootStatus{
			{Name: "Cat", Contract: "ICat", Failed: true},
			{Name: "Dog", Contract: "IDog"},
		},
		Diagnostics: []diag.Diagnostic{
			{Kind: diag.KindUnableToResolve, Severity: diag.SeverityError},
			{Kind: diag.KindMetadataDefect, Severity: diag.SeverityWarning},
		},
	}

	r, err := NewReport("cats.yaml", []byte("name: cats"), res)
	require.NoError(t, err)

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "cats", r.Name)
	assert.Equal(t, "cats.yaml", r.File)
	assert.Len(t, r.SourceHash, 64)
	assert.Equal(t, 1, r.Errors)
	assert.Equal(t, 1, r.Warnings)
	assert.Equal(t, []string{"Cat"}, r.FailedRoots())
	assert.False(t, r.CreatedAt.IsZero())
}

func TestNewReport_UniqueIDs(t *testing.T) {
	res := composer.Result{Name: "x", Success: true}
	a, err := NewReport("", []byte("a"), res)
	require.NoError(t, err)
	b, err := NewReport("", []byte("a"), res)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.SourceHash, b.SourceHash)
}

func TestNewReport_RequiresName(t *testing.T) {
	_, err := NewReport("", []byte("a"), composer.Result{Name: "  "})
	assert.ErrorIs(t, err, ErrReportNameRequired)
}

func TestNewReport_RequiresSource(t *testing.T) {
	_, err := NewReport("", nil, composer.Result{Name: "x"})
	assert.ErrorIs(t, err, ErrReportSourceRequired)
}

func TestReport_Summary(t *testing.T) {
	r := &Report{
		ID:          "r1",
		Name:        "x",
		Diagnostics: []diag.Diagnostic{{Kind: diag.KindCyclicDependency}},
	}
	s := r.Summary()
	assert.Equal(t, "r1", s.ID)
	assert.Nil(t, s.Diagnostics)
	assert.Len(t, r.Diagnostics, 1, "original untouched")
}
