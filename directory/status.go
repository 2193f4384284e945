// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package directory

// Status is the presence of a contact.
// It should normally be one of the constants defined in this package.
type Status int

// The presence states carried by the wire protocol.
const (
	// StatusUnknown is the zero value, used before any presence notification
	// has been received for a contact.
	StatusUnknown Status = iota

	StatusOffline
	StatusOnline
	StatusBusy
	StatusIdle
	StatusAway
	StatusBeRightBack
	StatusOnThePhone
	StatusOutToLunch
	StatusHidden
)

var statusNames = map[Status]string{
	StatusOffline:     "FLN",
	StatusOnline:      "NLN",
	StatusBusy:        "BSY",
	StatusIdle:        "IDL",
	StatusAway:        "AWY",
	StatusBeRightBack: "BRB",
	StatusOnThePhone:  "PHN",
	StatusOutToLunch:  "LUN",
	StatusHidden:      "HDN",
}

var statusValues = make(map[string]Status, len(statusNames))

func init() {
	for s, name := range statusNames {
		statusValues[name] = s
	}
}

// ParseStatus maps a wire status string onto a Status. Unrecognized strings
// map to StatusUnknown.
func ParseStatus(s string) Status {
	return statusValues[s]
}

// String returns the wire form of the status, or "unknown".
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Online reports whether the status describes a contact that is signed in,
// regardless of availability.
func (s Status) Online() bool {
	switch s {
	case StatusUnknown, StatusOffline, StatusHidden:
		return false
	}
	return true
}
