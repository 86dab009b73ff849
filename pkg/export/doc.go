// Package export provides backup and restore of stored report snapshots.
//
// A JSON backup holds every stored record together with its run id and
// generation time, so a restore brings back the full history and the
// latest table. CSV exports carry the same columns for spreadsheets but
// cannot be imported.
//
// HTTP API:
//
//	GET  /v1/export?format=json&from=2024-01&to=2024-06&node=1006
//	POST /v1/import   (Content-Type: application/json)
//
// Example:
//
//	curl "http://localhost:8080/v1/export" -o backup.json
//	curl -X POST "http://localhost:8080/v1/import" \
//	  -H "Content-Type: application/json" -d @backup.json
//
// Imports validate each record: month and node must be set, the run must
// be identified, and the expected count and percentage must agree with
// the month length. Invalid records are skipped and listed in the
// response. Restoring the same backup twice into badger storage is
// idempotent, since records are keyed by month, node and generation time.
package export
