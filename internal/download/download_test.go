package download

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/distantorigin/butter-launcher/internal/progress"
)

type call struct {
	done, total int64
	percentage  int
}

type recorder struct {
	mu    sync.Mutex
	calls []call
}

func (r *recorder) callback(done, total int64, percentage int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{done, total, percentage})
}

func newServer(t *testing.T, body []byte, withLength bool) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing.pwr":
			w.WriteHeader(http.StatusNotFound)
			return
		case "/empty.pwr":
			w.Header().Set("Content-Length", "0")
			return
		}
		if withLength {
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		}
		w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server
}

// TestFile_KnownSize tests a download with Content-Length
func TestFile_KnownSize(t *testing.T) {
	body := bytes.Repeat([]byte("x"), 256<<10)
	server := newServer(t, body, true)
	target := filepath.Join(t.TempDir(), "temp_7.pwr")

	rec := &recorder{}
	if err := New(nil).File(context.Background(), server.URL+"/7.pwr", target, rec.callback); err != nil {
		t.Fatalf("File() error = %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("failed to read download: %v", err)
	}
	if !bytes.Equal(data, body) {
		t.Errorf("downloaded %d bytes, want %d", len(data), len(body))
	}

	if len(rec.calls) < 2 {
		t.Fatalf("expected at least start and final callbacks, got %v", rec.calls)
	}
	first, last := rec.calls[0], rec.calls[len(rec.calls)-1]
	if first.percentage != 0 || first.total != int64(len(body)) {
		t.Errorf("first callback = %+v, want 0%% of %d", first, len(body))
	}
	if last.percentage != 100 || last.done != int64(len(body)) {
		t.Errorf("last callback = %+v, want 100%%", last)
	}
	for i := 1; i < len(rec.calls); i++ {
		if rec.calls[i].percentage < rec.calls[i-1].percentage {
			t.Errorf("progress went backwards: %v", rec.calls)
		}
	}
}

// TestFile_UnknownSize tests that a missing Content-Length reports -1
func TestFile_UnknownSize(t *testing.T) {
	body := bytes.Repeat([]byte("y"), 64<<10)
	server := newServer(t, body, false)
	target := filepath.Join(t.TempDir(), "fix.zip")

	rec := &recorder{}
	if err := New(nil).File(context.Background(), server.URL+"/fix.zip", target, rec.callback); err != nil {
		t.Fatalf("File() error = %v", err)
	}

	if rec.calls[0].percentage != progress.Indeterminate || rec.calls[0].total != -1 {
		t.Errorf("first callback = %+v, want indeterminate with unknown total", rec.calls[0])
	}
	if rec.calls[len(rec.calls)-1].percentage != 100 {
		t.Errorf("last callback = %+v, want 100", rec.calls[len(rec.calls)-1])
	}
}

// TestFile_Errors tests that failures wrap ErrDownloadFailed and leave nothing behind
func TestFile_Errors(t *testing.T) {
	server := newServer(t, []byte("data"), true)

	tests := []struct {
		name string
		path string
	}{
		{name: "not found", path: "/missing.pwr"},
		{name: "empty body", path: "/empty.pwr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := filepath.Join(t.TempDir(), "out.pwr")
			err := New(nil).File(context.Background(), server.URL+tt.path, target, nil)
			if !errors.Is(err, ErrDownloadFailed) {
				t.Fatalf("File() error = %v, want ErrDownloadFailed", err)
			}
			if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
				t.Errorf("partial file left behind: %v", statErr)
			}
		})
	}
}

// TestFile_ConnectionRefused tests a transport failure
func TestFile_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	err := New(nil).File(context.Background(), url+"/1.pwr", filepath.Join(t.TempDir(), "x"), nil)
	if !errors.Is(err, ErrDownloadFailed) {
		t.Errorf("File() error = %v, want ErrDownloadFailed", err)
	}
}

// TestFile_Cancelled tests that cancelling the context aborts the transfer
func TestFile_Cancelled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000000")
		w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	target := filepath.Join(t.TempDir(), "slow.pwr")
	err := New(nil).File(ctx, server.URL+"/slow.pwr", target, nil)
	if !errors.Is(err, ErrDownloadFailed) {
		t.Fatalf("File() error = %v, want ErrDownloadFailed", err)
	}
	if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
		t.Error("partial file should be removed after cancellation")
	}
}

// TestFile_OverwritesExisting tests that stale files are never resumed
func TestFile_OverwritesExisting(t *testing.T) {
	server := newServer(t, []byte("fresh"), true)
	target := filepath.Join(t.TempDir(), "temp_1.pwr")
	if err := os.WriteFile(target, []byte("stale-and-longer"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := New(nil).File(context.Background(), server.URL+"/1.pwr", target, nil); err != nil {
		t.Fatalf("File() error = %v", err)
	}
	data, _ := os.ReadFile(target)
	if string(data) != "fresh" {
		t.Errorf("content = %q, want fresh", data)
	}
}

// TestBandCallback tests scaling into a sub-range
func TestBandCallback(t *testing.T) {
	rec := &progress.Recorder{}
	cb := BandCallback(rec, progress.PhaseFixDownload, 0, 80)

	cb(0, 100, 0)
	cb(50, 100, 50)
	cb(100, 100, 100)
	cb(0, 0, progress.Indeterminate)

	want := []int{0, 40, 80, progress.Indeterminate}
	events := rec.Events()
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, e := range events {
		if e.Percent != want[i] || e.Phase != progress.PhaseFixDownload {
			t.Errorf("event %d = %+v, want %d%%", i, e, want[i])
		}
	}
}

// TestSinkCallback tests byte counts reaching the sink
func TestSinkCallback(t *testing.T) {
	rec := &progress.Recorder{}
	SinkCallback(rec, progress.PhasePWRDownload)(512, 1024, 50)

	events := rec.Events()
	if len(events) != 1 {
		t.Fatalf("got %d events", len(events))
	}
	e := events[0]
	if e.Kind != progress.KindProgress || e.Total != 1024 || e.Current != 512 || e.Percent != 50 {
		t.Errorf("event = %+v", e)
	}
}
