/*
Package table parses gateway exports into per-node tables and joins them
into one wide table keyed by timestamp.

# Source Files

Every export starts with a fixed metadata block before the header row:

	Node ID,1006
	Node type,Vibrating Wire
	...                              (9 lines in total)
	Date-and-time,p-1006-1,p-1006-2  <- header
	2024-01-01 00:00:00,101.2,99.8
	2024-01-01 01:00:00,101.3,

Exports come as bare CSV files or as ZIP archives of CSV files. Files and
archive members whose name contains "health" hold gateway diagnostics and
are never parsed. Cells spelled like a missing value ("", "NA", "NaN",
"null", ...) become null.

# Merging

Merge joins every table carrying the timestamp column on that column:

	node 1006                  node 1007
	Date-and-time  p-1006-1    Date-and-time  p-1007-1
	00:00          1.0         01:00          7.0
	01:00          1.1

	merged
	Date-and-time  p-1006-1  p-1007-1
	00:00          1.0       null
	01:00          1.1       7.0

The merge base is the smallest node id, so the result does not depend on
map iteration order.
*/
package table
