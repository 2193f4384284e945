// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package command_test

import (
	"bytes"
	"fmt"
	"testing"

	"mellium.im/msnp/command"
)

func TestMessageClass(t *testing.T) {
	for i, tc := range [...]struct {
		m     command.Message
		class command.Class
	}{
		0: {command.NewText("hello"), command.ClassText},
		1: {command.NewTyping("alice@example.net"), command.ClassTyping},
		2: {command.NewNudge(), command.ClassNudge},
		3: {command.NewEmoticonDefinition(":cat:\tobj"), command.ClassEmoticon},
	} {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			if c := tc.m.Class(); c != tc.class {
				t.Errorf("Got class %v but expected %v", c, tc.class)
			}
			// Serialization must survive a parse round trip.
			m, err := command.ReadMessage(tc.m.Bytes())
			if err != nil {
				t.Fatal(err)
			}
			if c := m.Class(); c != tc.class {
				t.Errorf("Got class %v after round trip but expected %v", c, tc.class)
			}
		})
	}
}

func TestSplit(t *testing.T) {
	body := bytes.Repeat([]byte("a"), 3000)
	chunks := command.Split(command.NewText(string(body)), 1400)
	if len(chunks) != 3 {
		t.Fatalf("Got %d chunks but expected 3", len(chunks))
	}
	for i, want := range []int{1400, 1400, 200} {
		if len(chunks[i].Body) != want {
			t.Errorf("Got chunk %d of %d bytes but expected %d", i, len(chunks[i].Body), want)
		}
	}
	if chunks[0].Header.Get(command.HeaderChunks) != "3" {
		t.Errorf("Got chunk count %q but expected 3", chunks[0].Header.Get(command.HeaderChunks))
	}
	id := chunks[0].Header.Get(command.HeaderMessageID)
	if id == "" {
		t.Fatal("Expected a generated message id on the first chunk")
	}
	for i := 1; i < 3; i++ {
		if chunks[i].Header.Get(command.HeaderMessageID) != id {
			t.Errorf("Chunk %d does not share the message id", i)
		}
		if chunks[i].Header.Get(command.HeaderChunk) != fmt.Sprintf("%d", i) {
			t.Errorf("Got chunk index %q for chunk %d", chunks[i].Header.Get(command.HeaderChunk), i)
		}
		if chunks[i].Class() != command.ClassChunk {
			t.Errorf("Chunk %d is not classified as a continuation chunk", i)
		}
	}
}

func TestSplitSmall(t *testing.T) {
	m := command.NewText("hello")
	chunks := command.Split(m, 1400)
	if len(chunks) != 1 {
		t.Fatalf("Got %d chunks but expected 1", len(chunks))
	}
	if chunks[0].Header.Get(command.HeaderMessageID) != "" {
		t.Error("A single chunk message must not grow chunking headers")
	}
}

func TestMIMEValue(t *testing.T) {
	v := command.ParseMIMEValue("1:alice@example.net;via=9:group@live.com;epid={f1aa0ebb-627c-4c30-9fa6-e6bc7a74d87e}")
	if v.Value != "1:alice@example.net;via=9:group@live.com" {
		t.Errorf("Got value %q", v.Value)
	}
	if v.Attr("epid") != "{f1aa0ebb-627c-4c30-9fa6-e6bc7a74d87e}" {
		t.Errorf("Got epid %q", v.Attr("epid"))
	}
	const want = "1:alice@example.net;via=9:group@live.com;epid={f1aa0ebb-627c-4c30-9fa6-e6bc7a74d87e}"
	if v.String() != want {
		t.Errorf("Got serialization %q but expected %q", v.String(), want)
	}
}

func TestContactListPayload(t *testing.T) {
	var ml command.ContactList
	ml.Initial = true
	ml.Add("alice@example.net", 3, 1)
	ml.Add("bob@example.net", 1, 1)
	ml.Add("+15555550199", 1, 4)

	p, err := ml.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := command.ParseContactList(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed.Domains) != 2 {
		t.Fatalf("Got %d domains but expected 2", len(parsed.Domains))
	}
	if parsed.Domains[0].Name != "example.net" || len(parsed.Domains[0].Contacts) != 2 {
		t.Errorf("Got unexpected first domain %+v", parsed.Domains[0])
	}
	if got := parsed.Domains[0].Contacts[0]; got.Name != "alice" || got.Lists != 3 || got.Type != 1 {
		t.Errorf("Got unexpected contact entry %+v", got)
	}
}

func TestProfilePayload(t *testing.T) {
	const payload = `<Data><PSM>busy</PSM><EndpointData id="{a}"><Capabilities>2789003324:48</Capabilities></EndpointData><EndpointData id="{b}"/></Data>`
	data, err := command.ParseProfilePayload([]byte(payload))
	if err != nil {
		t.Fatal(err)
	}
	if data.PSM != "busy" {
		t.Errorf("Got PSM %q", data.PSM)
	}
	ids := data.EndpointIDs()
	if !ids["{a}"] || !ids["{b}"] || len(ids) != 2 {
		t.Errorf("Got endpoint ids %v", ids)
	}
	if _, err = command.ParseProfilePayload(nil); err != nil {
		t.Errorf("Empty payload must parse, got %v", err)
	}
}
