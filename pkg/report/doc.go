// Package report turns attendance records into the month × node
// completeness matrix and hands it to display sinks.
//
// A matrix for two nodes over two months looks like:
//
//	Month     1006    1007
//	2024-01   100.00  50.00
//	2024-02   50.00   -
//
// "-" marks a node with no sample in that month; it is never shown as 0.
//
// Sinks:
//   - TextSink: aligned plain text, wide or long layout
//   - CSVSink: CSV, wide or long layout
//   - JSONSink: the full report including records
//   - ChartSink: grouped bar chart PNG drawn with gg
//   - Hub: pushes each report to websocket clients
package report
