package internal

// sessionDescription is the JSON body exchanged with the browser on
// /offer and inside websocket signaling messages.
type sessionDescription struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

type websocketMessage struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}
