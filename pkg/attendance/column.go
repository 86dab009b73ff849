package attendance

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nicktill/damwatch/pkg/config"
)

// ErrMalformedColumn is returned for measurement columns that do not name
// a node.
var ErrMalformedColumn = errors.New("malformed measurement column")

// Channel identifies the node and channel a measurement column belongs to.
type Channel struct {
	Column  string
	NodeID  string
	Channel string
}

// IsMeasurement reports whether a column holds measurements.
func IsMeasurement(column string) bool {
	return strings.HasPrefix(column, config.MeasurementPrefix)
}

// ParseColumn splits "p-<node>-<channel>" into its parts. The node is the
// second '-' separated field and must not be empty; the channel is
// everything after it and may be empty. Columns renamed during a merge
// ("p-1006-1_1007") keep their original node.
func ParseColumn(column string) (Channel, error) {
	if !IsMeasurement(column) {
		return Channel{}, fmt.Errorf("%w: %q lacks prefix %q", ErrMalformedColumn, column, config.MeasurementPrefix)
	}
	parts := strings.SplitN(column, "-", 3)
	node := parts[1]
	if node == "" {
		return Channel{}, fmt.Errorf("%w: %q has no node id", ErrMalformedColumn, column)
	}

	ch := Channel{Column: column, NodeID: node}
	if len(parts) == 3 {
		ch.Channel = parts[2]
	}
	return ch, nil
}
