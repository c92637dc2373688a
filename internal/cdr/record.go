// Package cdr defines the canonical call detail record schema shared by the
// normalizer, the analyzers and the storage and export collaborators.
package cdr

import (
	"fmt"
	"strings"
	"time"
)

// Direction is the call direction relative to the subject.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// EventType classifies the telecom event.
type EventType string

const (
	EventVoice EventType = "voice"
	EventSMS   EventType = "sms"
	EventData  EventType = "data"
)

// Status is the call completion status.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusMissed    Status = "missed"
	StatusBusy      Status = "busy"
)

// Record is one normalized call/SMS/data event. Records are created once by
// the normalizer and never modified afterwards.
type Record struct {
	RecordID  string `json:"record_id"`
	SessionID string `json:"session_id"`

	CallingNumber string    `json:"calling_number"`
	CalledNumber  string    `json:"called_number"`
	Direction     Direction `json:"direction"`

	StartTime       time.Time `json:"start_time"` // always UTC
	DurationSeconds float64   `json:"duration_seconds"`

	EventType EventType `json:"event_type"`
	Status    Status    `json:"status"`

	IMEI        string   `json:"imei,omitempty"`
	IMSI        string   `json:"imsi,omitempty"`
	CellTowerID string   `json:"cell_tower_id,omitempty"`
	LAC         int      `json:"lac,omitempty"` // 0 when absent
	MNC         int      `json:"mnc,omitempty"`
	MCC         int      `json:"mcc,omitempty"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`

	SMSContent   string  `json:"sms_content,omitempty"`
	CostUnits    float64 `json:"cost_units,omitempty"`
	DataVolumeMB float64 `json:"data_volume_mb,omitempty"`

	CalledCountryCode string `json:"called_country_code,omitempty"`

	SourceVendor string `json:"source_vendor"`
	RawRowIndex  int    `json:"raw_row_index"`
}

// HasCoordinates reports whether the record carries a direct lat/lon.
func (r *Record) HasCoordinates() bool {
	return r.Lat != nil && r.Lon != nil
}

// TowerKey identifies the serving cell. Cell IDs are reused across location
// areas, so the LAC is part of the key whenever it is known.
func (r *Record) TowerKey() string {
	if r.CellTowerID == "" {
		return ""
	}
	if r.LAC > 0 {
		return fmt.Sprintf("%d-%s", r.LAC, r.CellTowerID)
	}
	return r.CellTowerID
}

// Counterpart returns the party that is not the subject. When neither party
// matches the subject the direction decides.
func (r *Record) Counterpart(subject string) string {
	switch {
	case subject != "" && SameNumber(r.CallingNumber, subject):
		return r.CalledNumber
	case subject != "" && SameNumber(r.CalledNumber, subject):
		return r.CallingNumber
	case r.Direction == DirectionIncoming:
		return r.CallingNumber
	default:
		return r.CalledNumber
	}
}

// SameNumber compares two MSISDNs ignoring international prefixes, so that
// "+919812345678" and "9812345678" match on their national significant part.
func SameNumber(a, b string) bool {
	if a == b {
		return true
	}
	a, b = strings.TrimPrefix(a, "+"), strings.TrimPrefix(b, "+")
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if len(a) < len(b) {
		a, b = b, a
	}
	return len(b) >= 8 && strings.HasSuffix(a, b)
}

// Coordinate is a resolved tower position.
type Coordinate struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Address string  `json:"address,omitempty"`
	Source  string  `json:"source,omitempty"`
}

// CellKey is the tuple the coordinate-lookup collaborator resolves.
type CellKey struct {
	MCC    int    `json:"mcc"`
	MNC    int    `json:"mnc"`
	LAC    int    `json:"lac"`
	CellID string `json:"cell_id"`
}

// String renders the key as mcc:mnc:lac:cell.
func (k CellKey) String() string {
	return fmt.Sprintf("%d:%d:%d:%s", k.MCC, k.MNC, k.LAC, k.CellID)
}

// CellKeyOf builds the lookup key for a record.
func CellKeyOf(r *Record) CellKey {
	return CellKey{MCC: r.MCC, MNC: r.MNC, LAC: r.LAC, CellID: r.CellTowerID}
}
