// Package sim provides the trial engine for the markov-sim dice pipeline.
//
// # Reading Guide
//
// Start with these two files:
//   - trial.go: Trial state machine (start → point established → succeeded/failed)
//   - rng.go: Seedable two-dice roll source feeding the state machine
//
// # Architecture
//
// The sim package defines the pure trial types; the pipeline stages live in
// sub-packages:
//   - sim/record/: Result writers (csv rows, toml documents, msgpack frames)
//   - sim/job/: Generate stage, runs N trials into one output sink
//   - sim/summary/: Summarize stage, folds result streams into a report
//   - sim/pipeline/: Serial and parallel composition of the two stages
//
// # Determinism
//
// A Dice built with a non-zero seed replays the same roll sequence for the
// same number of draws. Two Generate runs with identical samples and seed
// write identical record sequences.
package sim
