// Package storage keeps the per-day audit record of the polling loop.
//
// Drivers:
//   - "file": one text file per day, log_<YYYY-MM-DD>.txt, entries written as
//     "<time>:\n<text>\n"
//   - "sqlite": a single SQLite database (build with -tags sqlite)
//   - "none": entries are discarded
package storage
