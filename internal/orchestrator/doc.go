// Package orchestrator runs the two lifecycle phases of a minho runtime.
//
// The Orchestrator is registered into the service registry near the start
// of bootstrap. Services registered after it retrieve it from their
// OnRegister hook and contribute callbacks:
//
//	lc, err := services.Require[*orchestrator.Orchestrator](registry)
//	if err != nil {
//	    return err
//	}
//	if err := lc.OnStart("deployer", d.start); err != nil {
//	    return err
//	}
//	return lc.OnShutdown("deployer", d.stop)
//
// The state machine is Idle, Starting, Started, Stopping, Stopped. Start
// and Stop run their batch sequentially on the calling goroutine in
// registration order. A failing callback never aborts the batch; every
// failure is reported in one *services.AggregateError after the batch.
//
// Callbacks added after their phase has begun are rejected with
// ErrPhaseStarted instead of being silently dropped.
package orchestrator
