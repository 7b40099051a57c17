package model

import "strings"

// Known device commands.
const (
	CmdRelayOn  = "RELAY_ON"
	CmdAlarmOff = "ALARM_OFF"
)

// CommandTag returns the event tag logged when cmd is issued.
func CommandTag(cmd string) string {
	switch cmd {
	case CmdRelayOn:
		return TagSystemOn
	case CmdAlarmOff:
		return TagSystemOff
	default:
		return "CONTROL_" + strings.ToUpper(strings.TrimSpace(cmd))
	}
}
