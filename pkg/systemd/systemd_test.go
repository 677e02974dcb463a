package systemd

import "testing"

func TestNoopOutsideSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	if UnderSystemd() {
		t.Fatal("UnderSystemd with empty NOTIFY_SOCKET")
	}
	sent, err := Ready()
	if err != nil || sent {
		t.Fatalf("Ready() = %v, %v", sent, err)
	}
	if sent, err := Status("armed %d", 3); err != nil || sent {
		t.Fatalf("Status() = %v, %v", sent, err)
	}
}
