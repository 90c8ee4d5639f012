// Package agent contains the agent nodes that a swarm routes between.
//
// The package focuses on three concerns:
//
//  1. The Node contract and its tagged Outcome (completed, transfer, failed)
//  2. A model-centric tool-calling node (ModelAgent)
//  3. Ordered composition of nodes (Sequential)
//
// Execution model:
//   - A node receives a read-only snapshot of the conversation state
//   - It never mutates that snapshot; new messages and progress flags are
//     returned in the Outcome and applied by the caller
//   - Failures are caught at the node boundary and classified as a
//     *core.Failure; only context cancellation is returned as an error
//
// Routing, retries and persistence live in the swarm, runner and checkpoint
// packages to keep this package free of cyclic deps.
package agent
