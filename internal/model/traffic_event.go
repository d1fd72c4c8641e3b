package model

const EventTypeTraffic = "traffic"

// TrafficEvent is one observation relayed by the upstream stream.
type TrafficEvent struct {
	Type       string `json:"type"`
	SrcIP      string `json:"srcIp"`
	DstIP      string `json:"dstIp"`
	SrcIsAgent bool   `json:"srcIsAgent"`
	DstIsAgent bool   `json:"dstIsAgent"`
	Size       int64  `json:"size"`
	Proto      string `json:"proto,omitempty"`
	SrcPort    int    `json:"srcPort,omitempty"`
	DstPort    int    `json:"dstPort,omitempty"`
}

func (e TrafficEvent) IsTraffic() bool {
	return e.Type == EventTypeTraffic
}

// SubscribeRequest is the empty request body of the subscribe call.
type SubscribeRequest struct{}
