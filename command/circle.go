// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package command

import (
	"encoding/xml"

	"mellium.im/xmlstream"

	"mellium.im/msnp/address"
)

// CircleRoster is the XML body of a roster push notification for a circle or
// temporary group. It carries the full membership snapshot of the group at
// the time of the push; membership changes are derived by diffing snapshots.
type CircleRoster struct {
	XMLName xml.Name `xml:"circle"`

	// Media names the roster's media type; instant messaging rosters use
	// "IM".
	Media string `xml:"roster>id"`

	Users []RosterUser `xml:"roster>user"`
}

// RosterUser is one member entry in a roster snapshot. ID is a composite
// address.
type RosterUser struct {
	ID string `xml:"id"`
}

// ParseCircleRoster decodes a roster push body.
func ParseCircleRoster(p []byte) (CircleRoster, error) {
	var r CircleRoster
	err := xml.Unmarshal(p, &r)
	return r, err
}

// Members parses every member entry into an address. Entries that do not
// parse are returned in bad with their parse error and skipped; a push with
// one malformed member must not lose the rest of the snapshot.
func (r CircleRoster) Members() (members []address.Address, bad []string) {
	for _, u := range r.Users {
		a, err := address.Parse(u.ID)
		if err != nil {
			bad = append(bad, u.ID)
			continue
		}
		members = append(members, a)
	}
	return members, bad
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (r CircleRoster) TokenReader() xml.TokenReader {
	inner := make([]xml.TokenReader, 0, len(r.Users)+1)
	inner = append(inner, xmlstream.Wrap(
		xmlstream.Token(xml.CharData(r.Media)),
		xml.StartElement{Name: xml.Name{Local: "id"}},
	))
	for _, u := range r.Users {
		inner = append(inner, xmlstream.Wrap(
			xmlstream.Wrap(
				xmlstream.Token(xml.CharData(u.ID)),
				xml.StartElement{Name: xml.Name{Local: "id"}},
			),
			xml.StartElement{Name: xml.Name{Local: "user"}},
		))
	}
	return xmlstream.Wrap(
		xmlstream.Wrap(
			xmlstream.MultiReader(inner...),
			xml.StartElement{Name: xml.Name{Local: "roster"}},
		),
		xml.StartElement{Name: xml.Name{Local: "circle"}},
	)
}

// WriteXML satisfies the xmlstream.WriterTo interface.
// It is like MarshalXML except it writes tokens to w.
func (r CircleRoster) WriteXML(w xmlstream.TokenWriter) (n int, err error) {
	return xmlstream.Copy(w, r.TokenReader())
}

// MarshalXML satisfies the xml.Marshaler interface.
func (r CircleRoster) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	_, err := r.WriteXML(e)
	if err != nil {
		return err
	}
	return e.Flush()
}

// Bytes serializes the roster for transmission.
func (r CircleRoster) Bytes() ([]byte, error) {
	return xml.Marshal(r)
}
