package config

import "time"

// Server defaults
const (
	DefaultPort     = "8080"
	DefaultDataDir  = "./data/damwatch"
	DefaultBackend  = "badger"
	DefaultMemoryMB = 48
)

// DefaultMaxStorageMB marks the service degraded once the data dir
// outgrows it.
const DefaultMaxStorageMB = 1024

// Source file layout
const (
	// HeaderSkipLines is the metadata block every gateway CSV starts with.
	HeaderSkipLines = 9
	HealthMarker    = "health"
	TableExt        = ".csv"
	ArchiveExt      = ".zip"
	CurrentMarker   = "current"
)

// Column conventions
const (
	TimestampColumn   = "Date-and-time"
	MeasurementPrefix = "p-"
	HoursPerDay       = 24
)

// Gateway defaults
const (
	DefaultGatewayBaseURL = "https://loadsensing.wocs3.com"
	DefaultGatewayID      = "27920"
	DefaultGatewayMonths  = 3
	DefaultGatewayTimeout = 30 * time.Second
)

// DefaultGatewayNodes are the piezometer nodes read when GATEWAY_NODES is unset.
var DefaultGatewayNodes = []string{"1006", "1007", "1008", "1010", "1011", "1012"}

// Run and retention
const (
	RunTimeout         = 10 * time.Minute
	QueryTimeout       = 30 * time.Second
	DefaultRetention   = 365 * 24 * time.Hour
	RetentionInterval  = 6 * time.Hour
	BadgerGCInterval   = 10 * time.Minute
	MaxRunHistoryLimit = 10000
)

// WebSocket configuration
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSBroadcastBuffer = 16
	WSChannelBuffer   = 10
	WSWriteDeadline   = 10 * time.Second
	WSReadDeadline    = 60 * time.Second
	WSPingInterval    = 30 * time.Second
)

// Chart rendering
const (
	ChartWidth  = 960
	ChartHeight = 480

	// Upper bounds for requested sizes; the canvas costs 4 bytes a pixel.
	MaxChartWidth  = 4096
	MaxChartHeight = 4096
)
