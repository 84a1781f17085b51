package models

// SignalCode code carried by an alert
type SignalCode string

const (
	// SignalEarthquake earthquake warning
	SignalEarthquake SignalCode = "EQW"
	// SignalTest routine test, only relayed in test mode
	SignalTest SignalCode = "RWT"
)

// Signal describes where an alert trigger came from
type Signal struct {
	Test    bool
	Twitter bool
}

// AlertPayload body posted to every webhook
type AlertPayload struct {
	Code    SignalCode `json:"code"`
	Date    string     `json:"date"`
	Test    bool       `json:"test,omitempty"`
	Twitter bool       `json:"twitter,omitempty"`
}
