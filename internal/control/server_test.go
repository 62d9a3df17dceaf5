package control

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestServer_StartStopFetchStatus(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), "test.sock")

	provider := func() Status {
		return Status{
			Name:             "edge1",
			UptimeSeconds:    42.5,
			ManagementPrefix: "lci:/edge1",
			FIBRoutes:        3,
			PITEntries:       1,
			ContentStore:     StoreStatus{CapacityMB: 64, SizeBytes: 2048, Entries: 2},
			Links: []LinkStatus{
				{ID: 0, Name: "wan0", Local: false, Routable: true, MTU: 1400},
			},
		}
	}

	srv := NewServer(socketPath, provider, nil)

	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer srv.Stop()

	status, err := FetchStatus(socketPath)
	if err != nil {
		t.Fatalf("FetchStatus() error: %v", err)
	}

	if status.Name != "edge1" {
		t.Errorf("Name = %q, want %q", status.Name, "edge1")
	}
	if status.FIBRoutes != 3 {
		t.Errorf("FIBRoutes = %d, want 3", status.FIBRoutes)
	}
	if len(status.Links) != 1 || status.Links[0].Name != "wan0" {
		t.Errorf("Links = %+v, want one link named wan0", status.Links)
	}
	if status.ContentStore.Entries != 2 {
		t.Errorf("ContentStore.Entries = %d, want 2", status.ContentStore.Entries)
	}
}

func TestFetchStatus_NoServer(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), "nonexistent.sock")

	_, err := FetchStatus(socketPath)
	if err == nil {
		t.Fatal("expected error when server is not running, got nil")
	}
}

func TestServer_RoutesNotWired(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), "test.sock")
	srv := NewServer(socketPath, func() Status { return Status{} }, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer srv.Stop()

	err := SendRoute(socketPath, "POST", RouteEntry{Prefix: "lci:/a", Links: []string{"wan0"}})
	if err == nil {
		t.Fatal("expected error adding a route when no AddRouteFunc is wired")
	}
}

func TestServer_AddAndDeleteRoute(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), "test.sock")
	srv := NewServer(socketPath, func() Status { return Status{} }, nil)

	var added, deleted []RouteEntry
	srv.SetRouteFuncs(
		func(e RouteEntry) error { added = append(added, e); return nil },
		func(e RouteEntry) error { deleted = append(deleted, e); return nil },
	)

	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer srv.Stop()

	entry := RouteEntry{Prefix: "lci:/a", Links: []string{"wan0"}}
	if err := SendRoute(socketPath, "POST", entry); err != nil {
		t.Fatalf("SendRoute(POST) error: %v", err)
	}
	if len(added) != 1 || added[0].Prefix != "lci:/a" {
		t.Errorf("added = %+v, want one entry for lci:/a", added)
	}

	if err := SendRoute(socketPath, "DELETE", entry); err != nil {
		t.Fatalf("SendRoute(DELETE) error: %v", err)
	}
	if len(deleted) != 1 || deleted[0].Prefix != "lci:/a" {
		t.Errorf("deleted = %+v, want one entry for lci:/a", deleted)
	}
}

func TestServer_OpenAndCloseLink(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), "test.sock")
	srv := NewServer(socketPath, func() Status { return Status{} }, nil)

	var openedURI, closedName string
	srv.SetLinkFuncs(
		func(uri string) error { openedURI = uri; return nil },
		func(name string) error { closedName = name; return nil },
	)

	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer srv.Stop()

	uri := "udp://10.0.0.2:4567/name=wan0"
	if err := SendOpenLink(socketPath, uri); err != nil {
		t.Fatalf("SendOpenLink() error: %v", err)
	}
	if openedURI != uri {
		t.Errorf("openedURI = %q, want %q", openedURI, uri)
	}

	if err := SendCloseLink(socketPath, "wan0"); err != nil {
		t.Fatalf("SendCloseLink() error: %v", err)
	}
	if closedName != "wan0" {
		t.Errorf("closedName = %q, want %q", closedName, "wan0")
	}
}

func TestServer_OpenLinkError(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), "test.sock")
	srv := NewServer(socketPath, func() Status { return Status{} }, nil)
	srv.SetLinkFuncs(func(uri string) error { return errors.New("boom") }, nil)

	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer srv.Stop()

	if err := SendOpenLink(socketPath, "udp://x"); err == nil {
		t.Fatal("expected error from SendOpenLink when OpenLinkFunc fails")
	} else if !strings.Contains(err.Error(), "boom") {
		t.Errorf("error = %v, want it to mention %q", err, "boom")
	}
}
