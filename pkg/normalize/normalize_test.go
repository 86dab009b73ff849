package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nicktill/damwatch/pkg/table"
)

const key = "Date-and-time"

func merged(rows ...[2]string) *table.Table {
	t := &table.Table{Columns: []string{key, "p-1006-1"}}
	for _, r := range rows {
		row := []table.Value{table.String(r[0]), table.Null()}
		if r[0] == "" {
			row[0] = table.Null()
		}
		if r[1] != "" {
			row[1] = table.String(r[1])
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func TestRoundHour(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-01-01 10:00:00", "2024-01-01 10:00:00"},
		{"2024-01-01 10:29:59", "2024-01-01 10:00:00"},
		{"2024-01-01 10:30:00", "2024-01-01 11:00:00"},
		{"2024-01-01 11:30:00", "2024-01-01 12:00:00"},
		{"2024-01-31 23:45:00", "2024-02-01 00:00:00"},
	}
	n := New()
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ts, err := n.ParseTimestamp(tt.in)
			require.NoError(t, err)
			want, err := n.ParseTimestamp(tt.want)
			require.NoError(t, err)
			require.Equal(t, want, RoundHour(ts))
		})
	}
}

func TestBucket_DateComesFromUnroundedTimestamp(t *testing.T) {
	ts := time.Date(2024, 1, 31, 23, 40, 0, 0, time.UTC)
	date, hour := Bucket(ts)
	require.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), date)
	require.Equal(t, 0, hour)
}

func TestParseTimestamp_Layouts(t *testing.T) {
	n := New()
	for _, s := range []string{
		"2024-03-05 07:08:09",
		"2024-03-05T07:08:09",
		"2024-03-05 07:08:09.250",
		"2024-03-05T07:08:09Z",
		"2024-03-05 07:08",
		"2024/03/05 07:08:09",
		" 2024-03-05 07:08:09 ",
	} {
		ts, err := n.ParseTimestamp(s)
		require.NoError(t, err, s)
		require.Equal(t, 2024, ts.Year())
		require.Equal(t, time.March, ts.Month())
		require.Equal(t, 7, ts.Hour())
	}

	_, err := n.ParseTimestamp("yesterday")
	require.ErrorIs(t, err, ErrUnparsableTimestamp)
}

func TestNormalize_DropsUnparsableRows(t *testing.T) {
	in := merged(
		[2]string{"2024-01-01 00:00:00", "1"},
		[2]string{"not a date", "2"},
		[2]string{"", "3"},
		[2]string{"2024-01-01 01:00:00", "4"},
	)

	out, stats, err := New().Normalize(in, key)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Unparsable)
	require.Equal(t, 2, stats.Output)
	require.Equal(t, "1", out.Rows[0].Values[1].Text)
	require.Equal(t, "4", out.Rows[1].Values[1].Text)
}

func TestNormalize_FirstRowOfBucketWins(t *testing.T) {
	in := merged(
		[2]string{"2024-01-01 09:50:00", "first"},
		[2]string{"2024-01-01 10:10:00", "second"},
		[2]string{"2024-01-01 10:31:00", "third"},
	)

	out, stats, err := New().Normalize(in, key)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Duplicates)
	require.Len(t, out.Rows, 2)
	require.Equal(t, "first", out.Rows[0].Values[1].Text)
	require.Equal(t, 10, out.Rows[0].Hour)
	require.Equal(t, "third", out.Rows[1].Values[1].Text)
	require.Equal(t, 11, out.Rows[1].Hour)
}

func TestNormalize_Idempotent(t *testing.T) {
	in := merged(
		[2]string{"2024-01-01 00:05:00", "a"},
		[2]string{"2024-01-01 00:20:00", "b"},
		[2]string{"2024-01-01 00:40:00", "c"},
		[2]string{"2024-01-01 01:10:00", "d"},
		[2]string{"bogus", "e"},
		[2]string{"2024-01-01 23:50:00", "f"},
		[2]string{"2024-01-02 00:10:00", "g"},
	)
	n := New()

	once, _, err := n.Normalize(in, key)
	require.NoError(t, err)
	twice, stats, err := n.Normalize(once.Table(), key)
	require.NoError(t, err)

	require.Equal(t, once.Rows, twice.Rows)
	require.Zero(t, stats.Duplicates)
	require.Zero(t, stats.Unparsable)
}

func TestNormalize_MissingKeyColumn(t *testing.T) {
	_, _, err := New().Normalize(&table.Table{Columns: []string{"x"}}, key)
	require.ErrorIs(t, err, table.ErrNoTimestampColumn)
}
