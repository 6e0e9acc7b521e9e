// Package push schedules step-aligned publishing for a push-based metrics exporter.
//
// A Registry owns one recurring trigger per instance:
//   - the first publish is delayed to land shortly after the next step boundary,
//     jittered within the first 80% of the step
//   - later publishes fire at a fixed rate (anchored to the first tick, not to
//     completion time)
//   - a Guard lets at most one publish run; overlapping triggers are skipped and logged
//   - Close stops the trigger and performs one best-effort final publish
//
// Publish failures never leave this package: they are logged and counted.
package push
