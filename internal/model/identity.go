package model

import "strings"

// GuestIdentity namespaces readings recorded while no user is associated,
// both in the local queue and in the cloud store.
const GuestIdentity = "TEMP_GUEST"

// NormalizeIdentity trims id and maps a blank one to GuestIdentity.
func NormalizeIdentity(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return GuestIdentity
	}
	return id
}
