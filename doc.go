/*
Package tradeflow evaluates fantasy-league trade proposals as durable, checkpointed workflows.

A caller submits a proposal and gets a queued workflow id back at once. The workflow then
fetches the league, grades the trade, appends it to the league's bounded history, reads
the league's running narrative, and pushes the final snapshot to whoever is listening on
the workflow's stream. The same snapshot can always be polled, so a client that loses the
stream still reaches the same outcome.

# Components

  - league.Registry: one actor per league id. Every read and mutation of a league's
    state, history and narrative goes through its actor, in arrival order.
  - stream.Hub: one single-shot rendezvous channel per workflow id. A payload emitted
    before anyone connects is buffered; a second connect evicts the first waiter.
  - workflow.Engine: runs the step pipeline, persisting a checkpoint after every step so
    a restarted process resumes where the previous one stopped.

# Usage

	app := tradeflow.New(tradeflow.WithLogger(logger), tradeflow.WithMetrics(true))
	defer app.Close(context.Background())

	if _, err := app.Start(ctx, 10*time.Minute); err != nil {
		log.Fatal(err)
	}
	http.ListenAndServe(":8080", app.Handler())

Stores default to process memory. Use WithStores with the file, redis or sqlite adapters
for durability, and WithLocker when several processes share one redis.
*/
package tradeflow
