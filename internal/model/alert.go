package model

// AlertKind identifies a payload-less alert frame.
type AlertKind string

const (
	AlertSmoke AlertKind = "SMOKE" // ALERTA:HUMO
	AlertNoise AlertKind = "NOISE" // ALERTA:RUIDO
)

type Alert struct {
	Kind      AlertKind `json:"kind"`
	Timestamp int64     `json:"timestamp"`
}

// Message is the notice shown to the user.
func (a Alert) Message() string {
	switch a.Kind {
	case AlertSmoke:
		return "smoke alarm detected"
	case AlertNoise:
		return "loud noise detected"
	}
	return "unknown alert"
}

// Reading converts the alert into a persistable event with no numeric payload.
func (a Alert) Reading() Reading {
	tag := TagSmokeAlert
	if a.Kind == AlertNoise {
		tag = TagNoiseAlert
	}
	return Reading{Timestamp: a.Timestamp, Value: 0, EventTag: tag}
}
