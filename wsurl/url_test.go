package wsurl

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    Parsed
		wantErr bool
	}{
		{
			name: "plain with path",
			raw:  "ws://example.com:8080/stream",
			want: Parsed{Secure: false, Host: "example.com", Port: 8080, Path: "/stream"},
		},
		{
			name: "secure default port",
			raw:  "wss://example.com/feed",
			want: Parsed{Secure: true, Host: "example.com", Port: 443, Path: "/feed"},
		},
		{
			name: "plain default port no path",
			raw:  "ws://example.com",
			want: Parsed{Secure: false, Host: "example.com", Port: 80, Path: "/"},
		},
		{
			name: "ipv6 literal with port",
			raw:  "ws://[::1]:9001/",
			want: Parsed{Secure: false, Host: "::1", Port: 9001, Path: "/"},
		},
		{
			name:    "missing scheme",
			raw:     "example.com/path",
			wantErr: true,
		},
		{
			name:    "unsupported scheme",
			raw:     "http://example.com",
			wantErr: true,
		},
		{
			name:    "empty host",
			raw:     "ws:///path",
			wantErr: true,
		},
		{
			name:    "bad port",
			raw:     "ws://example.com:notaport/",
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q): expected error, got %+v", tc.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q): unexpected error: %v", tc.raw, err)
			}
			if got != tc.want {
				t.Fatalf("Parse(%q) = %+v, want %+v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestHostPort(t *testing.T) {
	p := Parsed{Host: "::1", Port: 9001}
	if got, want := p.HostPort(), "[::1]:9001"; got != want {
		t.Fatalf("HostPort() = %q, want %q", got, want)
	}

	p = Parsed{Host: "example.com", Port: 443}
	if got, want := p.HostPort(), "example.com:443"; got != want {
		t.Fatalf("HostPort() = %q, want %q", got, want)
	}
}
