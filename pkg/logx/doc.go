// Package logx is pushd's logging layer: a value-type Logger over zerolog
// whose output can be re-pointed at runtime.
//
// Components receive a Logger and derive from it with With. Loggers taken
// from a Service follow every later Service.Apply, so a config reload that
// changes the level or the log file reaches loggers handed out at start-up.
package logx
