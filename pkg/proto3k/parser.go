// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

package proto3k

import (
	"fmt"
	"regexp"
	"strings"
)

// responsePattern matches "~<digits>@<tag> <params>" terminated by CRLF.
// The space after the tag is required even when params are empty, and a
// bare LF does not terminate a reply. The start is unanchored so leading
// garbage on the line is tolerated.
var responsePattern = regexp.MustCompile(`~([0-9]+)@([^ \r\n]*) ([^\r\n]*)\r\n$`)

// Response is one parsed reply line
type Response struct {
	Device string
	Tag    string
	Params string
}

// ParseResponse extracts the device id, echoed tag and parameter string from
// a raw reply line. Lines that do not follow the grammar return false; they
// are noise to be skipped, never an error.
func ParseResponse(line string) (Response, bool) {
	m := responsePattern.FindStringSubmatch(line)
	if m == nil {
		return Response{}, false
	}

	params := strings.TrimSpace(m[3])
	params = strings.TrimSuffix(params, ",")

	return Response{
		Device: m[1],
		Tag:    strings.TrimSpace(m[2]),
		Params: params,
	}, true
}

// Fields splits the parameter string on commas
func (r Response) Fields() []string {
	if r.Params == "" {
		return nil
	}
	fields := strings.Split(r.Params, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

// IsError reports whether the device answered with an ERR code
func (r Response) IsError() bool {
	return strings.HasPrefix(strings.ToUpper(r.Params), "ERR")
}

// FormatResponse renders r as a canonical reply line
func FormatResponse(r Response) string {
	return fmt.Sprintf("~%s@%s %s\r\n", r.Device, r.Tag, r.Params)
}
