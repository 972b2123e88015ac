package peer

import "testing"

func TestExtractIPv4(t *testing.T) {
	if got := extractIP("1.2.3.4:9000"); got != "1.2.3.4" {
		t.Errorf("extractIP() = %q, want %q", got, "1.2.3.4")
	}
}

func TestExtractIPv6(t *testing.T) {
	if got := extractIP("[::1]:9000"); got != "::1" {
		t.Errorf("extractIP() = %q, want %q", got, "::1")
	}
}

func TestExtractIPNoPort(t *testing.T) {
	if got := extractIP("nohost"); got != "nohost" {
		t.Errorf("extractIP() = %q, want %q", got, "nohost")
	}
}
