package dictionary

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/noderepo/internal/ir"
)

func TestCompileModelString(t *testing.T) {
	m, err := CompileModelString("m.cue", `
namespaces: x: "http://x"
types: "x:doc": {
	title: "Document"
	parent: "cm:content"
	archive: true
	properties: {
		"x:lang": {type: "mltext", default: {en: "English", fr: "Anglais"}}
		"x:pages": {type: "int"}
	}
	associations: "x:parts": {kind: "child", target: "sys:base", duplicate: true}
}
aspects: "x:stamped": {}
`)
	require.NoError(t, err)

	assert.Equal(t, "m.cue", m.Name)
	assert.Equal(t, ir.Namespaces{"x": "http://x"}, m.Namespaces)
	require.Len(t, m.Classes, 2)

	doc := m.Classes[0]
	assert.Equal(t, "x:doc", doc.Name)
	assert.Equal(t, "Document", doc.Title)
	assert.False(t, doc.Aspect)
	require.NotNil(t, doc.Archive)
	assert.True(t, *doc.Archive)
	require.Len(t, doc.Properties, 2)
	assert.Equal(t, "x:lang", doc.Properties[0].Name)
	assert.Equal(t, map[string]any{"en": "English", "fr": "Anglais"}, doc.Properties[0].Default)
	require.Len(t, doc.Associations, 1)
	assert.Equal(t, KindChild, doc.Associations[0].Kind)
	assert.True(t, doc.Associations[0].Duplicate)

	assert.True(t, m.Classes[1].Aspect)
}

func TestCompileModelErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{"missing property type", `types: "x:a": properties: "x:p": {}`, "x:p.type"},
		{"unknown property type", `types: "x:a": properties: "x:p": {type: "float"}`, "x:p.type"},
		{"float default", `types: "x:a": properties: "x:p": {type: "int", default: 1.5}`, "default"},
		{"bad kind", `types: "x:a": associations: "x:r": {kind: "sideways", target: "x:a"}`, "x:r.kind"},
		{"missing target", `types: "x:a": associations: "x:r": {kind: "peer"}`, "x:r.target"},
		{"duplicate on peer", `types: "x:a": associations: "x:r": {kind: "peer", target: "x:a", duplicate: true}`, "x:r.duplicate"},
		{"archive on aspect", `aspects: "x:a": archive: true`, "x:a.archive"},
		{"empty model", `other: 1`, "model"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileModelString("bad.cue", tt.src)
			require.Error(t, err)
			var cerr *CompileError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestCompileModelSyntaxError(t *testing.T) {
	_, err := CompileModelString("broken.cue", `types: {`)
	require.Error(t, err)
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "cue", cerr.Field)
	assert.True(t, cerr.Pos.IsValid())
}

func TestLoadModelDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ns.cue"), []byte("package model\n\nnamespaces: x: \"http://x\"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "types.cue"), []byte("package model\n\ntypes: \"x:a\": parent: \"sys:base\"\n"), 0o644))

	m, err := LoadModelDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "http://x", m.Namespaces["x"])
	require.Len(t, m.Classes, 1)

	d, err := NewFromDirs(dir)
	require.NoError(t, err)
	assert.Equal(t, []ir.QName{TypeBase}, d.AncestorsOf(ir.NewQName("http://x", "a")))
}

func TestLoadModelDirMissing(t *testing.T) {
	_, err := LoadModelDir(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
