// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

package proto3k

import "testing"

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		want   Response
		wantOK bool
	}{
		{
			name:   "route reply",
			line:   "~01@ROUTE 1,1,3\r\n",
			want:   Response{Device: "01", Tag: "ROUTE", Params: "1,1,3"},
			wantOK: true,
		},
		{
			name:   "trailing comma stripped",
			line:   "~01@ROUTE 1,1,3,\r\n",
			want:   Response{Device: "01", Tag: "ROUTE", Params: "1,1,3"},
			wantOK: true,
		},
		{
			name:   "handshake has empty tag",
			line:   "~01@ OK\r\n",
			want:   Response{Device: "01", Tag: "", Params: "OK"},
			wantOK: true,
		},
		{
			name:   "multi digit device id",
			line:   "~123@VMUTE 1,2\r\n",
			want:   Response{Device: "123", Tag: "VMUTE", Params: "1,2"},
			wantOK: true,
		},
		{
			name:   "leading noise tolerated",
			line:   "\x00garbage~01@ROUTE 5,1,2\r\n",
			want:   Response{Device: "01", Tag: "ROUTE", Params: "5,1,2"},
			wantOK: true,
		},
		{
			name:   "empty params after space",
			line:   "~01@ROUTE \r\n",
			want:   Response{Device: "01", Tag: "ROUTE", Params: ""},
			wantOK: true,
		},
		{
			name:   "bare newline rejected",
			line:   "~01@ROUTE 1,1,3\n",
			wantOK: false,
		},
		{
			name:   "tag without space rejected",
			line:   "~01@ROUTE\r\n",
			wantOK: false,
		},
		{
			name:   "error reply",
			line:   "~01@ROUTE ERR 003\r\n",
			want:   Response{Device: "01", Tag: "ROUTE", Params: "ERR 003"},
			wantOK: true,
		},
		{
			name:   "missing tilde",
			line:   "01@ROUTE 1,1,3\r\n",
			wantOK: false,
		},
		{
			name:   "missing at sign",
			line:   "~01ROUTE 1,1,3\r\n",
			wantOK: false,
		},
		{
			name:   "partial line without terminator",
			line:   "~01@ROUTE 1,1",
			wantOK: false,
		},
		{
			name:   "empty",
			line:   "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseResponse(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("ParseResponse(%q) ok = %v, want %v", tt.line, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ParseResponse(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParseResponse_RoundTrip(t *testing.T) {
	tests := []Response{
		{Device: "01", Tag: "ROUTE", Params: "1,1,3"},
		{Device: "7", Tag: "VMUTE", Params: "2,1"},
		{Device: "01", Tag: "", Params: "OK"},
		{Device: "02", Tag: "NAME", Params: "VS-88UT"},
		{Device: "01", Tag: "ROUTE", Params: ""},
	}

	for _, want := range tests {
		line := FormatResponse(want)
		got, ok := ParseResponse(line)
		if !ok {
			t.Errorf("ParseResponse(FormatResponse(%+v)) did not parse %q", want, line)
			continue
		}
		if got != want {
			t.Errorf("round trip = %+v, want %+v", got, want)
		}
	}
}

func TestResponse_Fields(t *testing.T) {
	r := Response{Params: "1, 2,3"}
	fields := r.Fields()
	if len(fields) != 3 || fields[0] != "1" || fields[1] != "2" || fields[2] != "3" {
		t.Errorf("Fields() = %q, want [1 2 3]", fields)
	}

	if got := (Response{}).Fields(); got != nil {
		t.Errorf("Fields() on empty params = %q, want nil", got)
	}
}

func TestResponse_IsError(t *testing.T) {
	if !(Response{Params: "ERR 002"}).IsError() {
		t.Error("IsError() = false for ERR 002")
	}
	if (Response{Params: "1,1,3"}).IsError() {
		t.Error("IsError() = true for 1,1,3")
	}
}
