// Package tabular exposes read-only tabular files as acton databases.
//
// Three sources are supported:
//
//   - Delimited: CSV/TSV text with a header row. The file is imported once
//     into a private managed store that lives in a temporary directory and
//     is removed on Close.
//   - Columnar: Apache Arrow IPC files. Reads are served from the record
//     batches.
//   - Frame: a SQLite table. Reads are issued per row.
//
// Row position is the instance id. Every source has a single implicit
// labeller with id 0 and at most one label column (F = 1). All writes fail
// with acton.ErrReadOnly.
package tabular
