package model

import "time"

// MetricReport is the point-in-time view of one instance returned to the dashboard.
type MetricReport struct {
	Uptime           int64         `json:"uptime"`
	Connections      int64         `json:"connections"`
	ThreadsRunning   int64         `json:"threads_running"`
	ThreadsConnected int64         `json:"threads_connected"`
	SlowQueries      int64         `json:"slow_queries"`
	QPS              float64       `json:"qps"`
	TPS              float64       `json:"tps"`
	SlowQueryList    []SlowQuery   `json:"slow_queries_list"`
	ActiveQueries    []ActiveQuery `json:"active_queries"`
	TableSpace       []TableSpace  `json:"table_space"`
	Timestamp        int64         `json:"timestamp"` // unix millis
	InstanceName     string        `json:"instanceName,omitempty"`
}

// EmptyReport is the zero report served when live data is unavailable.
func EmptyReport(at time.Time) MetricReport {
	return MetricReport{
		SlowQueryList: []SlowQuery{},
		ActiveQueries: []ActiveQuery{},
		TableSpace:    []TableSpace{},
		Timestamp:     at.UnixMilli(),
	}
}

// SlowQuery is one entry from the slow log (or a long-running process as fallback).
type SlowQuery struct {
	Query         string    `json:"query"`
	ExecutionTime string    `json:"execution_time"`
	LockTime      string    `json:"lock_time"`
	RowsSent      int64     `json:"rows_sent"`
	Database      string    `json:"database"`
	QueryTime     time.Time `json:"query_time"`
}

// ActiveQuery is a non-sleeping processlist row.
type ActiveQuery struct {
	ID      int64  `json:"id"`
	User    string `json:"user"`
	Host    string `json:"host"`
	DB      string `json:"db"`
	Command string `json:"command"`
	Time    int64  `json:"time"`
	State   string `json:"state"`
	Info    string `json:"info"`
}

// TableSpace aggregates storage per schema.
type TableSpace struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	DataSize    int64  `json:"data_size"`
	IndexSize   int64  `json:"index_size"`
	PercentUsed string `json:"percent_used"`
}
