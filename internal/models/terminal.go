package models

// TerminalType is the only terminal type the backend knows about.
const TerminalType = "버스터미널"

// Terminal is a bus terminal. Coordinates and route counts are not supplied by
// the backend and stay zero.
type Terminal struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Address   string  `json:"address"`
	Routes    int     `json:"routes"`
	Telephone string  `json:"telephone,omitempty"`
	URL       string  `json:"url,omitempty"`
}
