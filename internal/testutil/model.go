package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/noderepo/internal/dictionary"
	"github.com/roach88/noderepo/internal/ir"
)

// Namespace is the namespace of the shared test model (prefix "test").
const Namespace = "http://noderepo.dev/test/1.0"

// ModelSource is a CUE model used across package tests.
//
// Types: test:doc (under cm:content), test:report (under test:doc),
// test:record (test:doc with mandatory test:audited), test:box (under
// cm:folder, archive disabled).
//
// Aspects: test:marker with children test:tagged and test:flagged;
// test:titled with defaults; test:audited and test:stamped mandate each
// other; test:linked declares the test:links peer and test:parts child
// associations.
const ModelSource = `
namespaces: {
	test: "http://noderepo.dev/test/1.0"
}

types: {
	"test:doc": {
		parent: "cm:content"
		properties: {
			"test:code": {type: "text"}
			"test:ref": {type: "noderef"}
			"test:refs": {type: "noderef", multiple: true}
		}
	}
	"test:report": {
		parent: "test:doc"
	}
	"test:record": {
		parent: "test:doc"
		mandatory_aspects: ["test:audited"]
	}
	"test:box": {
		parent:  "cm:folder"
		archive: false
	}
}

aspects: {
	"test:marker": {}
	"test:tagged": {
		parent: "test:marker"
		properties: {
			"test:tags": {type: "text", multiple: true}
		}
	}
	"test:flagged": {
		parent: "test:marker"
		properties: {
			"test:flag": {type: "bool", default: false}
		}
	}
	"test:titled": {
		properties: {
			"test:title": {type: "text", default: "Untitled"}
			"test:description": {type: "text", default: "None"}
		}
	}
	"test:audited": {
		properties: {
			"test:auditor": {type: "text", default: "system"}
		}
		mandatory_aspects: ["test:stamped"]
	}
	"test:stamped": {
		properties: {
			"test:stamp": {type: "int", default: 0}
		}
		mandatory_aspects: ["test:audited"]
	}
	"test:linked": {
		associations: {
			"test:links": {kind: "peer", target: "sys:base"}
			"test:parts": {kind: "child", target: "sys:base", duplicate: true}
		}
	}
	"test:localized": {
		properties: {
			"test:label": {type: "mltext"}
		}
	}
}
`

// QName returns a QName in the test namespace.
func QName(local string) ir.QName {
	return ir.NewQName(Namespace, local)
}

// Model compiles ModelSource.
func Model(t testing.TB) *dictionary.Model {
	t.Helper()
	m, err := dictionary.CompileModelString("test.cue", ModelSource)
	require.NoError(t, err)
	return m
}

// Dictionary builds the bootstrap models plus the test model.
func Dictionary(t testing.TB) *dictionary.Dictionary {
	t.Helper()
	d, err := dictionary.New(Model(t))
	require.NoError(t, err)
	return d
}
