package jobs

// RepairPayload names the entity whose cascade must be replayed.
// Keep payload minimal and ID-based; the worker reloads everything from the store.
type RepairPayload struct {
	TargetID    string `json:"targetId"`
	RequestedBy string `json:"requestedBy,omitempty"`
	RequestID   string `json:"requestId,omitempty"`
}
