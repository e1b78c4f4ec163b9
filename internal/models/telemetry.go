package models

import "time"

// ParameterSample is one observed change of a live TCC parameter
type ParameterSample struct {
	Timestamp time.Time `json:"timestamp"`
	Interface string    `json:"interface"`
	Parameter string    `json:"parameter"`
	ID        uint16    `json:"id"`
	CANID     uint32    `json:"can_id"`
	Value     float64   `json:"value"`
}

// SampleQuery filters recorded samples
type SampleQuery struct {
	StartTime *time.Time
	EndTime   *time.Time
	Parameter string
	Limit     int
}
