package filelist

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParse_SkipsCommentsAndDuplicates(t *testing.T) {
	got, err := Parse([]byte("# pool\nhttp://a:8080\n\nsocks5://b:1080\nhttp://a:8080\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 2 || got[0] != "http://a:8080" || got[1] != "socks5://b:1080" {
		t.Fatalf("unexpected proxies: %v", got)
	}
}

func TestParse_RejectsBareHost(t *testing.T) {
	if _, err := Parse([]byte("10.0.0.1:3128\n")); err == nil {
		t.Fatalf("expected an error for a proxy without scheme")
	}
}

func TestList_RoundRobinAndAlive(t *testing.T) {
	l := FromURLs([]string{"http://a:1", "http://b:1"})
	if l.Next() != "http://a:1" || l.Next() != "http://b:1" || l.Next() != "http://a:1" {
		t.Fatalf("expected round robin order")
	}
	if !l.Alive("http://b:1") || l.Alive("http://c:1") {
		t.Fatalf("unexpected liveness")
	}
	empty := FromURLs(nil)
	if empty.Next() != "" || empty.Len() != 0 {
		t.Fatalf("expected empty list to hand out nothing")
	}
}

func TestList_WatchReloadsAndDropsRemoved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.txt")
	if err := os.WriteFile(path, []byte("http://a:1\nhttp://b:1\n"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	l, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("http://b:1\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for l.Len() != 1 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if l.Len() != 1 || l.Alive("http://a:1") {
		t.Fatalf("expected a:1 removed after reload, got len %d", l.Len())
	}
}
