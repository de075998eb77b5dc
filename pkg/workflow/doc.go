/*
Package workflow runs trade evaluations as durable, checkpointed step sequences.

Each workflow executes five steps in order: fetch-league, evaluate-trade, append-history,
fetch-memory and notify-stream. A step's output is persisted as a checkpoint before the
cursor advances, so a workflow resumed after a restart skips the steps it already finished.

fetch-league and evaluate-trade are critical: the first fails the workflow immediately,
the second is attempted up to three times. Once evaluation succeeds the workflow is
complete, and the remaining steps are best-effort side effects whose failures are logged
and checkpointed but never change the outcome.

The terminal status is always persisted before the stream notification is sent, so a
client that receives the push and then polls sees the same snapshot.
*/
package workflow
