// Package runner drives conversation turns against a swarm.
//
// A Runner owns the turn boundary: it loads the conversation state from a
// checkpoint store, appends the user message, invokes the swarm and saves the
// result. Turns on the same conversation are serialised; turns on different
// conversations run concurrently.
//
// Every turn gets an id that can be passed to Cancel. A cancelled turn is not
// persisted, so the stored state is the one from before the turn started.
package runner
