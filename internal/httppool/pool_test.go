package httppool

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPoolFetchesOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	p, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	resp, err := p.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Errorf("body = %q, want \"ok\"", body)
	}
}

func TestDecompressBodyGzip(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	gw.Write([]byte("hello gzip"))
	gw.Close()

	r, err := DecompressBody("gzip", &buf)
	if err != nil {
		t.Fatalf("DecompressBody: %v", err)
	}
	data, _ := io.ReadAll(r)
	if string(data) != "hello gzip" {
		t.Errorf("got %q, want \"hello gzip\"", data)
	}
}

func TestDecompressBodyPassthroughForUnknownEncoding(t *testing.T) {
	r, err := DecompressBody("", bytes.NewBufferString("plain"))
	if err != nil {
		t.Fatalf("DecompressBody: %v", err)
	}
	data, _ := io.ReadAll(r)
	if string(data) != "plain" {
		t.Errorf("got %q, want \"plain\"", data)
	}
}
