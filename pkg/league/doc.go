/*
Package league owns the authoritative state of every league.

A Registry lazily starts one Actor per league id. Each actor is a goroutine with an
unbuffered mailbox: requests for one league are served one at a time in arrival order,
while different leagues proceed in parallel. Before serving its first request an actor
hydrates from the configured store; callers simply wait in the mailbox meanwhile.

History and memory are persisted as one LeagueSnapshot document, so a reader never
sees an appended record without the matching trade count, or the reverse.

When a DistributedLocker is configured, every operation additionally runs under the
league's distributed lock and reloads the snapshot first, so replicas that share a
store never interleave mutations on the same league.
*/
package league
