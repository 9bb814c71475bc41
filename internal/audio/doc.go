// Package audio provides the audio device registry and signal reconciliation
// engine for the ReSet panel.
//
// The authoritative audio state lives in the ReSet daemon. This package keeps a
// live local mirror of it: sinks, sources, input and output streams, and cards,
// plus the default sink and source selection.
//
// # Architecture
//
//	┌──────────────┐  Command   ┌─────────────────────────────────┐  calls   ┌─────────┐
//	│ presentation │──────────▶│            Processor            │────────▶│ Backend │
//	│  (api, ui)   │◀──────────│  stores + default tracker       │          │ (daemon)│
//	└──────────────┘  Snapshot  └─────────────────────────────────┘          └─────────┘
//	                                       ▲ Event                               │
//	                                       │                                     │ signals
//	                                ┌──────┴──────┐                              │
//	                                │   Worker    │◀─────────────────────────────┘
//	                                └─────────────┘
//
// The Processor is the single writer of all registry state. Commands and
// events are serialised through its bounded inbox. Commands are applied
// optimistically and forwarded to the Backend off the Processor goroutine;
// failures roll the optimistic change back. Events from the Worker are
// authoritative and always overwrite optimistic guesses.
//
// The Worker only runs while the audio domain is active. Navigation away from
// the page cancels its context and flips the shared ActiveDomain cell; the
// Worker exits at the next notification boundary.
//
// # Usage
//
//	proc := audio.NewProcessor(backend, audio.ProcessorConfig{QueueSize: 64})
//	proc.SetLogger(log)
//	go proc.Run(ctx)
//
//	activator := audio.NewActivator(proc, backend, cell)
//	activator.Activate(audio.DomainAudio)
//
//	ticket, err := proc.Dispatch(ctx, audio.SetMute{Category: audio.CategorySink, Index: 3, Muted: true})
//	if err == nil {
//	    err = ticket.Wait(ctx)
//	}
//
//	snap := proc.Snapshot()
package audio
