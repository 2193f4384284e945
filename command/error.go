// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package command

import "strconv"

// Error represents a numeric protocol error sent by the server in the verb
// position of a command.
type Error struct {
	// Code is the numeric error code.
	Code int

	// TrID is the transaction id of the command the error answers, zero when
	// the error was not a reply.
	TrID uint32
}

// FromCommand builds an Error from a decoded numeric command.
func FromCommand(c Command) Error {
	e := Error{Code: c.Code}
	e.TrID, _ = c.TrID()
	return e
}

// Error satisfies the error interface.
func (e Error) Error() string {
	text := ErrorText(e.Code)
	if text == "" {
		return "command: server error " + strconv.Itoa(e.Code)
	}
	return "command: server error " + strconv.Itoa(e.Code) + ": " + text
}

// Recoverable reports whether the error leaves the connection usable.
// Authentication errors do not; everything else, including server
// availability codes, answers a single operation and the connection
// survives.
func (e Error) Recoverable() bool {
	switch e.Code {
	case 911, 928:
		return false
	}
	return true
}

var errorText = map[int]string{
	200: "invalid syntax",
	201: "invalid parameter",
	205: "invalid principal",
	206: "domain name missing",
	207: "already signed in",
	208: "invalid principal name",
	209: "nickname change illegal",
	210: "principal list full",
	215: "principal already on list",
	216: "principal not on list",
	217: "principal not online",
	218: "already in mode",
	219: "principal in opposite list",
	223: "too many groups",
	224: "invalid group",
	225: "principal not in group",
	227: "group not empty",
	228: "group with same name already exists",
	229: "group name too long",
	230: "cannot remove group zero",
	231: "invalid group",
	240: "empty or full contact list sync mismatch",
	280: "switchboard transfer failed",
	281: "notify transfer failed",
	300: "required fields missing",
	302: "not signed in",
	500: "internal server error",
	501: "database server error",
	502: "command disabled",
	510: "file operation failed",
	520: "memory allocation failed",
	540: "challenge response failed",
	600: "server busy",
	601: "server unavailable",
	602: "nameserver down",
	603: "database connect error",
	604: "server going down",
	605: "server unavailable",
	707: "could not create connection",
	710: "bad CVR parameters",
	711: "write is blocking",
	712: "session overloaded",
	713: "calling too rapidly",
	714: "too many sessions",
	715: "not expected",
	717: "bad friend file",
	731: "not expected",
	800: "changing display name too rapidly",
	910: "server too busy",
	911: "authentication failed",
	912: "server too busy",
	913: "not allowed while hidden",
	920: "not accepting new principals",
	921: "server too busy",
	922: "server too busy",
	923: "kids passport without parental consent",
	924: "passport account not yet verified",
	928: "bad ticket",
}

// ErrorText returns a text for the protocol error code. It returns the empty
// string if the code is unknown.
func ErrorText(code int) string {
	return errorText[code]
}
