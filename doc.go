// Package stepflow holds the pieces shared by the workflow engine packages:
// typed errors and the logging contract.
//
// The engine itself is split by concern:
//
//	expr     sandboxed boolean expressions for field rules and guards
//	workflow the workflow document model, codec and validation
//	graph    definition <-> editable graph transform and layered layout
//	editor   draft/publish session, undo/redo history and canvas
//	render   field tagged union and injected widget registry
//	wizard   the step-by-step interpreter with persistence and recovery
//	service  external service contracts and implementations
package stepflow
