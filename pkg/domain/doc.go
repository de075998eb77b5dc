/*
Package domain defines the core types of the trade evaluation system.

It holds the league model (teams, players, rules), trade proposals and their graded
evaluations, the per-league history and memory snapshot, and the durable workflow record
with its per-step checkpoints. The package has no dependencies on storage or transport.

# Invariants

  - A league's history never holds more than HistoryLimit records; the oldest are evicted first.
  - A workflow status never leaves a terminal state (complete, errored, terminated).
  - A WorkflowSnapshot is the single shape observed by both the status poll and the stream.
*/
package domain
