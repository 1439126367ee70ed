package dictionary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeMandatoryAspectsCycle(t *testing.T) {
	m, err := CompileModelString("cycle.cue", `
namespaces: x: "http://x"
aspects: {
	"x:a": mandatory_aspects: ["x:b"]
	"x:b": mandatory_aspects: ["x:a"]
	"x:self": mandatory_aspects: ["x:self"]
	"x:leaf": mandatory_aspects: ["x:a"]
}
`)
	require.NoError(t, err)
	d, err := New(m)
	require.NoError(t, err, "mandatory-aspect cycles are warnings, not errors")

	warnings := AnalyzeMandatoryAspects(d)
	require.Len(t, warnings, 2)
	assert.Equal(t, []string{"x:a", "x:b", "x:a"}, warnings[0].Path)
	assert.Equal(t, []string{"x:self", "x:self"}, warnings[1].Path)
	assert.Equal(t, "warning", warnings[0].Level)
	assert.Contains(t, warnings[0].Message, "x:a → x:b → x:a")
}

func TestAnalyzeMandatoryAspectsAcyclic(t *testing.T) {
	m, err := CompileModelString("dag.cue", `
namespaces: x: "http://x"
aspects: {
	"x:a": mandatory_aspects: ["x:b"]
	"x:b": {}
}
`)
	require.NoError(t, err)
	d, err := New(m)
	require.NoError(t, err)
	assert.Empty(t, AnalyzeMandatoryAspects(d))
}
