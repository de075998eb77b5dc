/*
Package ports defines the driven ports (interfaces) of the trade evaluation system.

These interfaces decouple the league actor and the workflow engine from storage backends,
text generation services and notification transports.

# Key Interfaces

  - Store: persists league snapshots and workflow records (memory, file, SQLite, Redis).
  - DistributedLocker: serializes access to one key across replicas.
  - Evaluator, TextGenerator, Summarizer, CompsIndex: external collaborators of an evaluation.
  - Notifier: push delivery of a workflow's completion payload.
*/
package ports
