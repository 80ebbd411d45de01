// Package tailer follows the newest file matching a name pattern in a
// directory and turns appended bytes into log records.
//
// A tail starts at the current end of the file. When the file is removed,
// replaced under the same name (detected by its creation stamp) or
// truncated, the engine reports FileRemoved, waits for the next matching
// file, reports NewFileFound and reads that file from its first byte.
package tailer
