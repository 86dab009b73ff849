/*
Package storage provides the pluggable storage abstraction for report
snapshots.

# Storage Interface

Every pipeline run produces one record per (month, node). The server
writes them as a snapshot stamped with the run's GeneratedAt and RunID,
so the history of a month's completeness is kept as late data arrives.

Backends:
  - memory: in-memory storage for tests and one-shot runs
  - badger: BadgerDB (LSM tree + Snappy compression) for the server

All backends implement the Storage interface:

	type Storage interface {
	    Write(ctx context.Context, records []attendance.Record) error
	    Query(ctx context.Context, req QueryRequest) ([]attendance.Record, error)
	    Delete(ctx context.Context, before time.Time) error
	    Stats(ctx context.Context) (*Stats, error)
	    Close() error
	}

# Queries

QueryRequest filters by an inclusive month range and node ids. With
LatestOnly set only the newest snapshot per (month, node) is returned,
which is what the report endpoints serve:

	records, err := store.Query(ctx, storage.QueryRequest{
	    From:       attendance.Month{Year: 2024, Month: time.January},
	    LatestOnly: true,
	})

Results are always ordered by month, then node, then run time.

# Key Layout (badger)

	[xxhash(month|node) 8 bytes][generated_at unix nanos 8 bytes]

Values are the JSON-encoded record. Retention (Delete) reads the run
time from the key and never loads values.

# Retention

Delete(before) drops every snapshot generated before the cutoff. The
server calls it periodically with now minus REPORT_RETENTION.
*/
package storage
