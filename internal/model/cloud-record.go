package model

// CloudRecord is the document pushed to the cloud store.
type CloudRecord struct {
	PushID    string    `json:"push_id"`
	Identity  string    `json:"identity"`
	Timestamp int64     `json:"timestamp"`
	Value     int       `json:"lecturaHumo"`
	EventTag  string    `json:"evento"`
	SyncState SyncState `json:"estado"`
}

func NewCloudRecord(pushID, identity string, r Reading) CloudRecord {
	return CloudRecord{
		PushID:    pushID,
		Identity:  identity,
		Timestamp: r.Timestamp,
		Value:     r.Value,
		EventTag:  r.EventTag,
		SyncState: r.SyncState,
	}
}
