// Package engine implements the orchestration loop that drives a
// tool-calling conversation. Each run alternates between asking the model
// for the next step and executing the tools it requests, feeding results
// back into the transcript until the model answers, the interaction budget
// runs out, or a fatal error ends the run. Optional collaborators (history
// store, observer) use nil-safe composition.
package engine
