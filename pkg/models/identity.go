package models

// TempSessionPrefix marks a session id derived locally from the guest id,
// used before backend provisioning completes.
const TempSessionPrefix = "temp:"

// LocalIdentity is the device-local participant identity. GuestID is minted
// once and persisted before any network call; BackendSessionID is adopted
// later when provisioning completes and only resets on explicit logout.
type LocalIdentity struct {
	GuestID          string `json:"guest_id"`
	DisplayName      string `json:"display_name,omitempty"`
	AvatarRef        string `json:"avatar_ref,omitempty"`
	BackendSessionID string `json:"backend_session_id,omitempty"`
}

// SessionID returns the id dependent systems should stamp on outgoing
// records: the backend session when provisioned, otherwise a temporary
// marker derived from the guest id.
func (id LocalIdentity) SessionID() string {
	if id.BackendSessionID != "" {
		return id.BackendSessionID
	}
	return TempSessionPrefix + id.GuestID
}

// Provisioned reports whether the backend session has been assigned.
func (id LocalIdentity) Provisioned() bool { return id.BackendSessionID != "" }
