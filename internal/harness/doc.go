// Package harness runs behaviour conformance scenarios.
//
// A scenario is a YAML file naming extra models, behaviours to bind, a list
// of node service operations and assertions. Each run gets a fresh
// in-memory repository whose workspace://main root is aliased "root".
// Nodes created by a step with "as" get that alias; aliases follow a node
// when it is archived, restored or moved to another store.
//
// Every scripted behaviour appends one trace line when it fires:
//
//	OnCreateNode audit doc
//
// The trace is checked by fired, not_fired, fired_order and fired_count
// assertions, and compared against golden files.
//
// Example:
//
//	name: cascade
//	description: deleting a folder deletes its primary children
//	behaviours:
//	  - {id: watch, policy: BeforeDeleteNode, class: cm:cmobject}
//	steps:
//	  - {op: create_node, parent: root, type: cm:folder, as: folder}
//	  - {op: create_node, parent: folder, type: cm:content, as: doc}
//	  - {op: delete_node, node: folder}
//	assertions:
//	  - {type: not_exists, node: doc}
//	  - type: fired_order
//	    lines: ["BeforeDeleteNode watch folder", "BeforeDeleteNode watch doc"]
package harness
