package models

import "time"

// TelemetryEvent is one append-only record per completed request, as shipped
// by the gateway's emitter and stored by the collector in api_logs.
type TelemetryEvent struct {
	PrincipalID string `db:"principal_id" json:"principal_id"`
	Method      string `db:"method" json:"method"`
	Endpoint    string `db:"endpoint" json:"endpoint"`
	Path        string `db:"path" json:"path"`
	ClientIP    string `db:"client_ip" json:"client_ip"`
	Date        string `db:"date" json:"date"` // YYYY-MM-DD
	Time        string `db:"time" json:"time"` // HH:MM:SS
	// RespTime is the handler latency in seconds. Nil when the request failed
	// before a response was produced.
	RespTime   *float64 `db:"resp_time" json:"response_time,omitempty"`
	StatusCode int      `db:"status_code" json:"status_code"`
}

// EventWire is the JSON shape the emitter POSTs to the collector.
type EventWire struct {
	PrincipalID string       `json:"principal_id"`
	Request     RequestWire  `json:"request"`
	Response    ResponseWire `json:"response"`
}

// RequestWire carries the request half of a telemetry event.
type RequestWire struct {
	Endpoint string `json:"endpoint"`
	Method   string `json:"method"`
	Path     string `json:"path"`
	ClientIP string `json:"client_ip"`
	Date     string `json:"date"`
	Time     string `json:"time"`
}

// ResponseWire carries the response half of a telemetry event.
type ResponseWire struct {
	StatusCode int      `json:"status_code"`
	RespTime   *float64 `json:"response_time,omitempty"`
}

// Event converts the wire form into the storage form.
func (w *EventWire) Event() *TelemetryEvent {
	return &TelemetryEvent{
		PrincipalID: w.PrincipalID,
		Method:      w.Request.Method,
		Endpoint:    w.Request.Endpoint,
		Path:        w.Request.Path,
		ClientIP:    w.Request.ClientIP,
		Date:        w.Request.Date,
		Time:        w.Request.Time,
		RespTime:    w.Response.RespTime,
		StatusCode:  w.Response.StatusCode,
	}
}

// IsSuccess reports whether the event counts toward the success counter.
// 2xx and 3xx are successes; everything else (including 4xx) is an error.
func (e *TelemetryEvent) IsSuccess() bool {
	return e.StatusCode >= 200 && e.StatusCode < 400
}

// CounterState holds the rolling per-principal request counters.
// Invariant: Total = Success + Error after every update.
type CounterState struct {
	PrincipalID string `db:"principal_id" json:"principal_id"`
	Total       int64  `db:"total_req" json:"total_req"`
	Success     int64  `db:"success_resp" json:"success_resp"`
	Error       int64  `db:"error_resp" json:"error_resp"`
}

// Analysis holds fleet-wide aggregates computed fresh on every call.
type Analysis struct {
	AvgResponseTime       float64 `json:"average_response_time"`
	PeakHour              string  `json:"peak_hour"`
	RequestsInPeakHour    int64   `json:"requests_in_peak_hour"`
	TopEndpoint           string  `json:"top_endpoint"`
	RequestsToTopEndpoint int64   `json:"requests_to_top_endpoint"`
}

// EventDate returns the event's calendar date in storage format.
func EventDate(t time.Time) string { return t.Format("2006-01-02") }

// EventTime returns the event's time-of-day in storage format.
func EventTime(t time.Time) string { return t.Format("15:04:05") }
