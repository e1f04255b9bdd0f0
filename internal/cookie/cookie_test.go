package cookie

import (
	"bytes"
	"net"
	"testing"
)

func TestGenerateClientCookie(t *testing.T) {
	clientIP := net.ParseIP("192.0.2.1").To4()
	serverIP := net.ParseIP("192.0.2.53").To4()

	cookie1 := GenerateClientCookie(clientIP, serverIP)
	cookie2 := GenerateClientCookie(clientIP, serverIP)

	if bytes.Equal(cookie1[:], cookie2[:]) {
		t.Error("client cookies should be unique")
	}
	if len(cookie1) != clientCookieSize {
		t.Errorf("client cookie size = %d, want %d", len(cookie1), clientCookieSize)
	}
}

func TestParseCookie(t *testing.T) {
	tests := []struct {
		name          string
		data          []byte
		wantClientLen int
		wantServerLen int
		wantErr       bool
	}{
		{
			name:          "client cookie only",
			data:          []byte{1, 2, 3, 4, 5, 6, 7, 8},
			wantClientLen: 8,
			wantServerLen: 0,
		},
		{
			name:          "client + server cookie",
			data:          []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
			wantClientLen: 8,
			wantServerLen: 8,
		},
		{
			name:    "too short",
			data:    []byte{1, 2, 3},
			wantErr: true,
		},
		{
			name:    "server cookie too long (>32 bytes)",
			data:    make([]byte, 8+33),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientCookie, serverCookie, err := ParseCookie(tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCookie() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(clientCookie) != tt.wantClientLen {
				t.Errorf("client cookie len = %d, want %d", len(clientCookie), tt.wantClientLen)
			}
			if len(serverCookie) != tt.wantServerLen {
				t.Errorf("server cookie len = %d, want %d", len(serverCookie), tt.wantServerLen)
			}
		})
	}
}

func TestFormatCookie(t *testing.T) {
	var clientCookie [8]byte
	copy(clientCookie[:], []byte{1, 2, 3, 4, 5, 6, 7, 8})

	data := FormatCookie(clientCookie, nil)
	if len(data) != 8 {
		t.Errorf("format client only: len = %d, want 8", len(data))
	}
	if !bytes.Equal(data, clientCookie[:]) {
		t.Error("format client only: data mismatch")
	}

	serverCookie := []byte{9, 10, 11, 12, 13, 14, 15, 16}
	data = FormatCookie(clientCookie, serverCookie)
	if len(data) != 16 {
		t.Errorf("format client+server: len = %d, want 16", len(data))
	}

	parsedClient, parsedServer, err := ParseCookie(data)
	if err != nil {
		t.Fatalf("parse formatted cookie: %v", err)
	}
	if !bytes.Equal(parsedClient[:], clientCookie[:]) {
		t.Error("parsed client cookie mismatch")
	}
	if !bytes.Equal(parsedServer, serverCookie) {
		t.Error("parsed server cookie mismatch")
	}
}

func TestManagerRemembersServerCookiePerResolver(t *testing.T) {
	m, err := NewManager(Config{Enabled: true})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	if got := m.ServerCookie("1.1.1.1:53"); got != nil {
		t.Errorf("ServerCookie() before any response = %v, want nil", got)
	}

	m.Remember("1.1.1.1:53", []byte{1, 2, 3, 4, 5, 6, 7, 8})
	m.Remember("8.8.8.8:53", []byte{9, 9, 9, 9, 9, 9, 9, 9})

	if got := m.ServerCookie("1.1.1.1:53"); !bytes.Equal(got, []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Errorf("ServerCookie(1.1.1.1:53) = %v, want the remembered cookie", got)
	}
	if got := m.ServerCookie("8.8.8.8:53"); !bytes.Equal(got, []byte{9, 9, 9, 9, 9, 9, 9, 9}) {
		t.Errorf("ServerCookie(8.8.8.8:53) = %v, want the remembered cookie", got)
	}
}

func TestManagerRemembersLatestCookie(t *testing.T) {
	m, _ := NewManager(Config{Enabled: true})
	m.Remember("1.1.1.1:53", []byte{1, 1, 1, 1, 1, 1, 1, 1})
	m.Remember("1.1.1.1:53", []byte{2, 2, 2, 2, 2, 2, 2, 2})

	if got := m.ServerCookie("1.1.1.1:53"); !bytes.Equal(got, []byte{2, 2, 2, 2, 2, 2, 2, 2}) {
		t.Errorf("ServerCookie() = %v, want the most recently remembered cookie", got)
	}
}

func TestManagerIgnoresOutOfRangeCookies(t *testing.T) {
	m, _ := NewManager(Config{Enabled: true})
	m.Remember("1.1.1.1:53", []byte{1, 2, 3}) // too short
	m.Remember("1.1.1.1:53", make([]byte, 40)) // too long

	if got := m.ServerCookie("1.1.1.1:53"); got != nil {
		t.Errorf("ServerCookie() = %v, want nil after only out-of-range cookies", got)
	}
}

func TestManagerEnabled(t *testing.T) {
	m, _ := NewManager(Config{Enabled: true})
	if !m.Enabled() {
		t.Error("Enabled() = false, want true")
	}

	m2, _ := NewManager(Config{Enabled: false})
	if m2.Enabled() {
		t.Error("Enabled() = true, want false")
	}
}

func BenchmarkGenerateClientCookie(b *testing.B) {
	clientIP := net.ParseIP("192.0.2.1").To4()
	serverIP := net.ParseIP("192.0.2.53").To4()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		GenerateClientCookie(clientIP, serverIP)
	}
}
