package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.log")
	if err := os.WriteFile(path, []byte("one\n\n  two  \nthree\nfour\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	tests := []struct {
		name string
		path string
		n    int
		want []string
	}{
		{name: "last two", path: path, n: 2, want: []string{"three", "four"}},
		{name: "more than file", path: path, n: 10, want: []string{"one", "two", "three", "four"}},
		{name: "zero", path: path, n: 0, want: []string{}},
		{name: "missing", path: filepath.Join(dir, "missing.log"), n: 5, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Tail(tt.path, tt.n)
			if err != nil {
				t.Fatalf("tail: %v", err)
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || got == nil {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFollowPrintsAppendedData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.log")
	if err := os.WriteFile(path, []byte("old\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var out syncBuffer
	done := make(chan error, 1)
	go func() { done <- Follow(ctx, path, &out, 10*time.Millisecond) }()

	time.Sleep(30 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	_, _ = f.WriteString("new line\n")
	_ = f.Close()

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), "new line") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("follow: %v", err)
	}
	if got := out.String(); got != "new line\n" {
		t.Fatalf("expected only appended data, got %q", got)
	}
}
