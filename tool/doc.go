// Package tool defines the contract boundary for Kit tools.
//
// The package is split by concern:
//   - contract: the definition shape a tool publishes and its typed form
//   - validate: the ordered definition rules and their issues
//   - registry: candidate discovery, gating, and dispatch
//   - loop: the bounded observe/execute/verify/self-correct executor
//   - store: dispatch history persistence
//
// Nothing in this package runs tool code while validating; only Dispatch
// reaches a tool's run function.
package tool
