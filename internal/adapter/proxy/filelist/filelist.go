// Package filelist serves proxies from a text file, one URL per line,
// reloading it when it changes.
package filelist

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"

	"hivescan/internal/app/ports"
	"hivescan/internal/fswatch"
)

type List struct {
	path   string
	Logger *slog.Logger

	mu      sync.RWMutex
	proxies []string
	alive   map[string]struct{}
	next    int
}

func Load(path string) (*List, error) {
	l := &List{path: path}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// FromURLs builds a fixed list.
func FromURLs(proxies []string) *List {
	l := &List{}
	l.set(proxies)
	return l
}

func (l *List) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l *List) Reload() error {
	b, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("read proxy file: %w", err)
	}
	proxies, err := Parse(b)
	if err != nil {
		return err
	}
	l.set(proxies)
	return nil
}

func (l *List) set(proxies []string) {
	alive := make(map[string]struct{}, len(proxies))
	for _, p := range proxies {
		alive[p] = struct{}{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.proxies = proxies
	l.alive = alive
	if l.next >= len(proxies) {
		l.next = 0
	}
}

// Parse reads one proxy URL per line. Blank lines and # comments are
// skipped; duplicates keep their first position.
func Parse(b []byte) ([]string, error) {
	var out []string
	seen := map[string]struct{}{}
	sc := bufio.NewScanner(bytes.NewReader(b))
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		u, err := url.Parse(line)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("proxy file line %d: invalid proxy %q", n, line)
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out, sc.Err()
}

// Next hands out proxies round-robin; empty when the list is empty.
func (l *List) Next() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.proxies) == 0 {
		return ""
	}
	p := l.proxies[l.next%len(l.proxies)]
	l.next = (l.next + 1) % len(l.proxies)
	return p
}

// Alive reports whether proxyURL is still on the list. Workers bound to a
// removed proxy give their account back.
func (l *List) Alive(proxyURL string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.alive[proxyURL]
	return ok
}

func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.proxies)
}

// Watch reloads the file on change until ctx is done. A file that fails to
// parse leaves the current list in place.
func (l *List) Watch(ctx context.Context) error {
	if l.path == "" {
		return nil
	}
	return fswatch.Watch(ctx, l.path, 0, func() {
		if err := l.Reload(); err != nil {
			l.logger().Warn("proxy list reload failed", "path", l.path, "err", err)
			return
		}
		l.logger().Info("proxy list reloaded", "path", l.path, "proxies", l.Len())
	})
}

var _ ports.ProxyProvider = (*List)(nil)
