package model

import "time"

// PeerView is a detached copy of a peer handed to readers.
type PeerView struct {
	Address   string    `json:"address"`
	Position  Vector3   `json:"position"`
	LastSeen  time.Time `json:"last_seen"`
	Volume    float64   `json:"volume"`
	Protocols []string  `json:"protocols"`
	PortsIn   []int     `json:"ports_in"`
	PortsOut  []int     `json:"ports_out"`
	IsHot     bool      `json:"is_hot"`
	Pinned    bool      `json:"pinned"`
}

type AgentView struct {
	Address  string    `json:"address"`
	Position Vector3   `json:"position"`
	LastSeen time.Time `json:"last_seen"`
	Pinned   bool      `json:"pinned"`
}

type LinkView struct {
	ID       string    `json:"id"`
	Start    Vector3   `json:"start"`
	End      Vector3   `json:"end"`
	Volume   float64   `json:"volume"`
	LastSeen time.Time `json:"last_seen"`
}

// Despawn marks a peer removed by the idle sweep, carrying its last position for fade-out.
type Despawn struct {
	Address  string    `json:"address"`
	Position Vector3   `json:"position"`
	At       time.Time `json:"at"`
}

// Snapshot is a stable view of the model at one instant.
type Snapshot struct {
	TakenAt  time.Time   `json:"taken_at"`
	Peers    []PeerView  `json:"peers"`
	Agents   []AgentView `json:"agents"`
	Links    []LinkView  `json:"links"`
	Despawns []Despawn   `json:"despawns,omitempty"`
	Selected string      `json:"selected,omitempty"`
}
