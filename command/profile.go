// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package command

import (
	"encoding/xml"

	"mellium.im/xmlstream"
)

// ProfilePayload is the XML body of a contact profile extension command. For
// the owner's own account it additionally enumerates every signed in endpoint
// and, for each of the owner's private endpoints, its name and state.
type ProfilePayload struct {
	XMLName xml.Name `xml:"Data"`

	// PSM is the personal status message.
	PSM string `xml:"PSM,omitempty"`

	// CurrentMedia is the "now playing" string.
	CurrentMedia string `xml:"CurrentMedia,omitempty"`

	Endpoints        []EndpointData        `xml:"EndpointData,omitempty"`
	PrivateEndpoints []PrivateEndpointData `xml:"PrivateEndpointData,omitempty"`
}

// EndpointData is one signed in endpoint of a contact, carrying its
// capability flags in "caps:extcaps" form.
type EndpointData struct {
	ID           string `xml:"id,attr"`
	Capabilities string `xml:"Capabilities,omitempty"`
}

// PrivateEndpointData describes one of the owner's own endpoints; it is only
// present on the owner's profile payload.
type PrivateEndpointData struct {
	ID         string `xml:"id,attr"`
	Name       string `xml:"EpName,omitempty"`
	Idle       bool   `xml:"Idle,omitempty"`
	ClientType int    `xml:"ClientType,omitempty"`
	State      string `xml:"State,omitempty"`
}

// ParseProfilePayload decodes a profile extension payload.
func ParseProfilePayload(p []byte) (ProfilePayload, error) {
	var data ProfilePayload
	if len(p) == 0 {
		return data, nil
	}
	err := xml.Unmarshal(p, &data)
	return data, err
}

// EndpointIDs returns the set of endpoint ids present in the payload.
func (d ProfilePayload) EndpointIDs() map[string]bool {
	ids := make(map[string]bool, len(d.Endpoints))
	for _, ep := range d.Endpoints {
		ids[ep.ID] = true
	}
	return ids
}

func wrapText(s, local string) xml.TokenReader {
	return xmlstream.Wrap(
		xmlstream.Token(xml.CharData(s)),
		xml.StartElement{Name: xml.Name{Local: local}},
	)
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (d ProfilePayload) TokenReader() xml.TokenReader {
	var children []xml.TokenReader
	if d.PSM != "" {
		children = append(children, wrapText(d.PSM, "PSM"))
	}
	if d.CurrentMedia != "" {
		children = append(children, wrapText(d.CurrentMedia, "CurrentMedia"))
	}
	for _, ep := range d.Endpoints {
		var inner xml.TokenReader
		if ep.Capabilities != "" {
			inner = wrapText(ep.Capabilities, "Capabilities")
		}
		children = append(children, xmlstream.Wrap(inner, xml.StartElement{
			Name: xml.Name{Local: "EndpointData"},
			Attr: []xml.Attr{{Name: xml.Name{Local: "id"}, Value: ep.ID}},
		}))
	}
	for _, ep := range d.PrivateEndpoints {
		var inner []xml.TokenReader
		if ep.Name != "" {
			inner = append(inner, wrapText(ep.Name, "EpName"))
		}
		if ep.State != "" {
			inner = append(inner, wrapText(ep.State, "State"))
		}
		children = append(children, xmlstream.Wrap(
			xmlstream.MultiReader(inner...),
			xml.StartElement{
				Name: xml.Name{Local: "PrivateEndpointData"},
				Attr: []xml.Attr{{Name: xml.Name{Local: "id"}, Value: ep.ID}},
			},
		))
	}
	return xmlstream.Wrap(
		xmlstream.MultiReader(children...),
		xml.StartElement{Name: xml.Name{Local: "Data"}},
	)
}

// WriteXML satisfies the xmlstream.WriterTo interface.
// It is like MarshalXML except it writes tokens to w.
func (d ProfilePayload) WriteXML(w xmlstream.TokenWriter) (n int, err error) {
	return xmlstream.Copy(w, d.TokenReader())
}

// MarshalXML satisfies the xml.Marshaler interface.
func (d ProfilePayload) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	_, err := d.WriteXML(e)
	if err != nil {
		return err
	}
	return e.Flush()
}

// Bytes serializes the payload for transmission.
func (d ProfilePayload) Bytes() ([]byte, error) {
	return xml.Marshal(d)
}
