// Package attendance computes monthly data completeness per sensor node.
//
// A node that reports once an hour for a whole month is 100% complete:
//
//	percentage = observed / (days_in_month × 24) × 100
//
// Every non-null value in a "p-<node>-<channel>" column counts as one
// observation for <node>, so a node with two channels can exceed 100%.
package attendance
