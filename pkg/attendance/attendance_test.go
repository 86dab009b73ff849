package attendance

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nicktill/damwatch/pkg/normalize"
	"github.com/nicktill/damwatch/pkg/table"
)

const key = "Date-and-time"

// hourly builds a normalized table with one row per hour from start,
// filling every listed column.
func hourly(start time.Time, hours int, columns ...string) *normalize.Table {
	t := &normalize.Table{Columns: append([]string{key}, columns...), Key: key}
	for h := 0; h < hours; h++ {
		ts := start.Add(time.Duration(h) * time.Hour)
		values := []table.Value{table.String(ts.Format("2006-01-02 15:04:05"))}
		for range columns {
			values = append(values, table.String("1.0"))
		}
		date, hour := normalize.Bucket(ts)
		t.Rows = append(t.Rows, normalize.Row{Timestamp: ts, Date: date, Hour: hour, Values: values})
	}
	return t
}

func TestMonth(t *testing.T) {
	m, err := ParseMonth("2024-02")
	require.NoError(t, err)
	require.Equal(t, Month{Year: 2024, Month: time.February}, m)
	require.Equal(t, 29, m.Days())
	require.Equal(t, 28, Month{2023, time.February}.Days())
	require.Equal(t, 31, Month{2024, time.January}.Days())
	require.Equal(t, "2024-02", m.String())
	require.Equal(t, Month{2023, time.December}, Month{2024, time.January}.AddMonths(-1))
	require.True(t, Month{2023, time.December}.Before(m))

	_, err = ParseMonth("2024/02")
	require.Error(t, err)

	b, err := json.Marshal(m)
	require.NoError(t, err)
	require.Equal(t, `"2024-02"`, string(b))

	var back Month
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, m, back)

	b, err = json.Marshal(Month{})
	require.NoError(t, err)
	require.Equal(t, `""`, string(b))
	require.NoError(t, json.Unmarshal(b, &back))
	require.True(t, back.IsZero())
}

func TestParseColumn(t *testing.T) {
	tests := []struct {
		column  string
		node    string
		channel string
		wantErr bool
	}{
		{"p-1006-1", "1006", "1", false},
		{"p-1006-Ch-2", "1006", "Ch-2", false},
		{"p-1006-1_1007", "1006", "1_1007", false},
		{"p-1006", "1006", "", false},
		{"p-", "", "", true},
		{"p--1", "", "", true},
		{"temp-1006-1", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			ch, err := ParseColumn(tt.column)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformedColumn)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.node, ch.NodeID)
			require.Equal(t, tt.channel, ch.Channel)
		})
	}
}

func TestAggregate_FullJanuaryIsComplete(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records, stats := Aggregate(hourly(start, 31*24, "p-A-1"))

	require.Len(t, records, 1)
	require.Equal(t, Record{
		Month:      Month{2024, time.January},
		NodeID:     "A",
		Observed:   744,
		Expected:   744,
		Percentage: 100.0,
	}, records[0])
	require.Equal(t, 744, stats.Samples)
}

func TestAggregate_TwentyEightDayMonth(t *testing.T) {
	start := time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)
	records, _ := Aggregate(hourly(start, 28*24, "p-1006-1"))

	require.Len(t, records, 1)
	require.Equal(t, 672, records[0].Observed)
	require.Equal(t, 100.0, records[0].Percentage)
}

func TestAggregate_NodeWithoutSamplesIsAbsent(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	nt := hourly(start, 24, "p-A-1", "p-B-1")
	bIdx := 2
	for i := range nt.Rows {
		nt.Rows[i].Values[bIdx] = table.Null()
	}

	records, stats := Aggregate(nt)
	require.Len(t, records, 1)
	require.Equal(t, "A", records[0].NodeID)
	require.Equal(t, 24, stats.NullValues)
}

func TestAggregate_IgnoresNonMeasurementColumns(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records, stats := Aggregate(hourly(start, 10, "temperature", "p-1006-1", "battery-1006", "p-"))

	require.Equal(t, []string{"p-1006-1"}, stats.Columns)
	require.Equal(t, []string{"p-"}, stats.MalformedColumns)
	for _, r := range records {
		require.Equal(t, "1006", r.NodeID)
	}
}

func TestAggregate_ChannelsAccumulateAndMayExceedHundred(t *testing.T) {
	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	records, _ := Aggregate(hourly(start, 30*24, "p-1006-1", "p-1006-2"))

	require.Len(t, records, 1)
	require.Equal(t, 1440, records[0].Observed)
	require.Equal(t, 200.0, records[0].Percentage)
}

func TestAggregate_SplitsByMonthAndSorts(t *testing.T) {
	start := time.Date(2024, 1, 31, 22, 0, 0, 0, time.UTC)
	records, _ := Aggregate(hourly(start, 4, "p-2-1", "p-1-1"))

	require.Len(t, records, 4)
	require.Equal(t, "2024-01", records[0].Month.String())
	require.Equal(t, "1", records[0].NodeID)
	require.Equal(t, 2, records[0].Observed)
	require.Equal(t, "2024-02", records[3].Month.String())
	require.Equal(t, "2", records[3].NodeID)
}

func TestPercentage_MonotonicInObserved(t *testing.T) {
	m := Month{2024, time.March}
	prev := -1.0
	for observed := 0; observed <= Expected(m)+10; observed++ {
		p := Percentage(observed, m)
		require.GreaterOrEqual(t, p, prev)
		prev = p
	}
}
