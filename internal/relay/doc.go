// Package relay translates between the worker's line stream and Message
// values.
//
// Each Message crosses the process boundary as exactly one JSON record per
// line. The relay never looks inside a message: it decodes worker output
// only far enough to know it is a single well-formed value, and it encodes
// host commands without adding or removing fields.
//
// Ordering is strict in both directions. Bridge.HandleLine runs on the
// supervisor's stdout reader goroutine and pushes each record to the host
// before reading the next. A malformed record is logged, counted and
// dropped; relay continues with the next line.
package relay
