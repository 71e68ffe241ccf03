package metrics

import (
	"encoding/json"
	"sync"
	"testing"
)

func TestCollector_Sessions(t *testing.T) {
	c := New()

	c.SessionOpened()
	c.SessionOpened()
	if c.ActiveSessions() != 2 {
		t.Errorf("active = %d, want 2", c.ActiveSessions())
	}

	c.SessionClosed()
	if c.ActiveSessions() != 1 {
		t.Errorf("active = %d, want 1", c.ActiveSessions())
	}
	if c.TotalSessions() != 2 {
		t.Errorf("total should remain 2, got %d", c.TotalSessions())
	}
}

func TestCollector_Requests(t *testing.T) {
	c := New()

	c.IdentifierIssued()
	c.IdentifierIssued()
	c.UnknownCommand()

	if c.Requests() != 3 {
		t.Errorf("requests = %d, want 3", c.Requests())
	}
	if c.Issued() != 2 {
		t.Errorf("issued = %d, want 2", c.Issued())
	}
	if c.Unknown() != 1 {
		t.Errorf("unknown = %d, want 1", c.Unknown())
	}
}

func TestCollector_Concurrent(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.IdentifierIssued()
				c.BytesSent(37)
			}
		}()
	}
	wg.Wait()

	if c.Issued() != 8000 {
		t.Errorf("issued = %d, want 8000", c.Issued())
	}
	if c.TotalBytesOut() != 8000*37 {
		t.Errorf("bytes out = %d", c.TotalBytesOut())
	}
}

func TestCollector_Errors(t *testing.T) {
	c := New()

	c.AcceptFailed("too many open files")
	c.IOFailed("read: connection timed out")

	snap := c.Snapshot()
	if snap.AcceptErrors != 1 || snap.IOErrors != 1 {
		t.Errorf("errors = %d/%d, want 1/1", snap.AcceptErrors, snap.IOErrors)
	}
	if snap.LastErrorMessage != "read: connection timed out" {
		t.Errorf("last error msg = %q", snap.LastErrorMessage)
	}
	if snap.LastError == "" {
		t.Error("expected last error timestamp")
	}
}

func TestCollector_JSON(t *testing.T) {
	c := New()
	c.SessionOpened()
	c.BytesReceived(4)
	c.BytesSent(37)

	var snap Snapshot
	if err := json.Unmarshal([]byte(c.JSON()), &snap); err != nil {
		t.Fatalf("JSON parse error: %v", err)
	}
	if snap.SessionsActive != 1 {
		t.Errorf("JSON active = %d", snap.SessionsActive)
	}
	if snap.BytesIn != 4 || snap.BytesOut != 37 {
		t.Errorf("JSON bytes = %d/%d", snap.BytesIn, snap.BytesOut)
	}
}

func TestNilCollector_NoOps(t *testing.T) {
	var c *Collector

	c.SessionOpened()
	c.SessionClosed()
	c.IdentifierIssued()
	c.UnknownCommand()
	c.BytesReceived(100)
	c.BytesSent(100)
	c.AcceptFailed("x")
	c.IOFailed("x")

	if c.ActiveSessions() != 0 || c.Requests() != 0 || c.IOErrors() != 0 {
		t.Error("nil collector should return 0")
	}
	if c.JSON() == "" {
		t.Error("nil JSON should return valid JSON")
	}
}
