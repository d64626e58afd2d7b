package entities

// Hospital is the read-only forwarding target
type Hospital struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Address        string `json:"address"`
	State          string `json:"state"`
	AmbulanceCount int    `json:"ambulance_count"`
}
