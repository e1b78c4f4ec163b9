package clickhouse

import (
	"testing"
	"time"

	"tcc-gateway/internal/models"
)

func TestBuildSampleQuery(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name  string
		q     models.SampleQuery
		query string
		args  int
	}{
		{
			"all",
			models.SampleQuery{},
			"SELECT timestamp, interface, parameter, id, can_id, value FROM samples WHERE 1=1 ORDER BY timestamp DESC",
			0,
		},
		{
			"filtered",
			models.SampleQuery{StartTime: &start, Parameter: "FAN_STATE", Limit: 10},
			"SELECT timestamp, interface, parameter, id, can_id, value FROM samples WHERE 1=1 AND timestamp >= ? AND parameter = ? ORDER BY timestamp DESC LIMIT ?",
			3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildSampleQuery("samples", tt.q)
			if query != tt.query {
				t.Errorf("query = %q\nwant    %q", query, tt.query)
			}
			if len(args) != tt.args {
				t.Errorf("args = %v", args)
			}
		})
	}
}
