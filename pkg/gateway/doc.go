// Package gateway lists and downloads node data files from a Loadsensing
// gateway's data server and hands them on as raw payloads keyed by node.
//
// Each node has an HTML listing at <base>/<gateway>/dataserver/node/view/<node>.
// Anchors ending in .csv or .zip are data files. Files named with a
// trailing -<year>-<month> are fetched for the configured number of recent
// months; files whose name contains "current" are always fetched.
package gateway
