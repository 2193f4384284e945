// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package command

import (
	"encoding/xml"
	"strconv"
	"strings"

	"mellium.im/xmlstream"
)

// ContactList is the XML payload of membership list change commands. Contacts
// are grouped under their account domain; accounts with no domain (telephone
// numbers) are grouped under an empty domain name.
type ContactList struct {
	XMLName xml.Name `xml:"ml"`

	// Initial marks the payload as part of the initial list synchronization
	// after signing in.
	Initial bool `xml:"l,attr,omitempty"`

	Domains []ListDomain `xml:"d"`
}

// ListDomain is one domain grouping inside a contact list payload.
type ListDomain struct {
	Name     string        `xml:"n,attr"`
	Contacts []ListContact `xml:"c"`
}

// ListContact is one contact entry inside a contact list payload. Lists is a
// bitmask of membership list flags and Type is the contact's network type.
type ListContact struct {
	Name  string `xml:"n,attr"`
	Lists int    `xml:"l,attr,omitempty"`
	Type  int    `xml:"t,attr,omitempty"`
}

// ParseContactList decodes a membership list payload.
func ParseContactList(p []byte) (ContactList, error) {
	var ml ContactList
	err := xml.Unmarshal(p, &ml)
	return ml, err
}

// Add appends a contact account to the payload, creating the domain grouping
// on first use.
func (ml *ContactList) Add(account string, lists, networkType int) {
	var name, domain string
	if idx := strings.LastIndex(account, "@"); idx == -1 {
		name = account
	} else {
		name, domain = account[:idx], account[idx+1:]
	}
	for i := range ml.Domains {
		if ml.Domains[i].Name == domain {
			ml.Domains[i].Contacts = append(ml.Domains[i].Contacts, ListContact{Name: name, Lists: lists, Type: networkType})
			return
		}
	}
	ml.Domains = append(ml.Domains, ListDomain{
		Name:     domain,
		Contacts: []ListContact{{Name: name, Lists: lists, Type: networkType}},
	})
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (ml ContactList) TokenReader() xml.TokenReader {
	domains := make([]xml.TokenReader, 0, len(ml.Domains))
	for _, d := range ml.Domains {
		contacts := make([]xml.TokenReader, 0, len(d.Contacts))
		for _, c := range d.Contacts {
			attrs := []xml.Attr{{Name: xml.Name{Local: "n"}, Value: c.Name}}
			if c.Lists != 0 {
				attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "l"}, Value: strconv.Itoa(c.Lists)})
			}
			if c.Type != 0 {
				attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "t"}, Value: strconv.Itoa(c.Type)})
			}
			contacts = append(contacts, xmlstream.Wrap(nil, xml.StartElement{
				Name: xml.Name{Local: "c"},
				Attr: attrs,
			}))
		}
		domains = append(domains, xmlstream.Wrap(
			xmlstream.MultiReader(contacts...),
			xml.StartElement{
				Name: xml.Name{Local: "d"},
				Attr: []xml.Attr{{Name: xml.Name{Local: "n"}, Value: d.Name}},
			},
		))
	}

	attrs := []xml.Attr{}
	if ml.Initial {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "l"}, Value: "1"})
	}
	return xmlstream.Wrap(
		xmlstream.MultiReader(domains...),
		xml.StartElement{Name: xml.Name{Local: "ml"}, Attr: attrs},
	)
}

// WriteXML satisfies the xmlstream.WriterTo interface.
// It is like MarshalXML except it writes tokens to w.
func (ml ContactList) WriteXML(w xmlstream.TokenWriter) (n int, err error) {
	return xmlstream.Copy(w, ml.TokenReader())
}

// MarshalXML satisfies the xml.Marshaler interface.
func (ml ContactList) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	_, err := ml.WriteXML(e)
	if err != nil {
		return err
	}
	return e.Flush()
}

// Bytes serializes the payload for transmission.
func (ml ContactList) Bytes() ([]byte, error) {
	return xml.Marshal(ml)
}
