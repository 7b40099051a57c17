package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// SyncState tells where a Reading was persisted.
type SyncState string

const (
	SyncOnline         SyncState = "ONLINE"
	SyncOfflinePending SyncState = "OFFLINE_PENDING"
	SyncOfflineSynced  SyncState = "OFFLINE_SYNCED"
)

// Event tags. Values match the records already stored by the mobile client.
const (
	TagNormal     = "NORMAL"
	TagDanger     = "PELIGRO_HUMO"
	TagSystemOn   = "SISTEMA_ON"
	TagSystemOff  = "SISTEMA_OFF"
	TagSmokeAlert = "ALERTA_HUMO"
	TagNoiseAlert = "ALERTA_RUIDO"
)

// DangerThreshold is the smoke level above which a reading is tagged as danger.
const DangerThreshold = 2000

// Reading is the unit of record: one decoded sample or one control/alert event.
type Reading struct {
	Timestamp int64     `json:"timestamp"` // unix ms, unique key
	Value     int       `json:"lecturaHumo"`
	EventTag  string    `json:"evento"`
	SyncState SyncState `json:"estado"`
}

// TagFor classifies a decoded telemetry value.
func TagFor(value int) string {
	if value > DangerThreshold {
		return TagDanger
	}
	return TagNormal
}

// Key is the local queue key of the reading.
func (r Reading) Key() string {
	return strconv.FormatInt(r.Timestamp, 10)
}

func (r Reading) String() string {
	return fmt.Sprintf("reading ts=%d value=%d tag=%s state=%s", r.Timestamp, r.Value, r.EventTag, r.SyncState)
}

var ErrMalformedEntry = errors.New("malformed queue entry")

// EncodeEntry serializes the reading as "value|eventTag|timestamp".
func EncodeEntry(r Reading) string {
	return strconv.Itoa(r.Value) + "|" + r.EventTag + "|" + strconv.FormatInt(r.Timestamp, 10)
}

// DecodeEntry parses a queue payload. The result is marked OFFLINE_SYNCED since
// entries are only decoded to be drained into the cloud store.
func DecodeEntry(s string) (Reading, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 3 {
		return Reading{}, fmt.Errorf("%w: %q", ErrMalformedEntry, s)
	}
	value, err := strconv.Atoi(parts[0])
	if err != nil {
		return Reading{}, fmt.Errorf("%w: value %q", ErrMalformedEntry, parts[0])
	}
	ts, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: timestamp %q", ErrMalformedEntry, parts[2])
	}
	return Reading{
		Timestamp: ts,
		Value:     value,
		EventTag:  parts[1],
		SyncState: SyncOfflineSynced,
	}, nil
}
