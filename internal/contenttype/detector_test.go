package contenttype

import (
	"net/http"
	"testing"
)

func TestDetectBySignature(t *testing.T) {
	d := New()
	pdf := append([]byte("%PDF-1.4\n"), []byte("rest of file")...)
	k, conf := d.Detect(pdf, "", nil, "")
	if k != KindPDF {
		t.Errorf("got %v, want pdf", k)
	}
	if conf < 0.9 {
		t.Errorf("confidence %v too low for signature match", conf)
	}
}

func TestDetectByMIMEHeader(t *testing.T) {
	d := New()
	h := http.Header{}
	h.Set("Content-Type", "application/json; charset=utf-8")
	k, _ := d.Detect([]byte(`{"a":1}`), "", h, "")
	if k != KindJSON {
		t.Errorf("got %v, want json", k)
	}
}

func TestDetectByURLExtension(t *testing.T) {
	d := New()
	k, _ := d.Detect(nil, "https://example.test/report.csv", nil, "")
	if k != KindCSV {
		t.Errorf("got %v, want csv", k)
	}
}

func TestDetectByContentAnalysisHTML(t *testing.T) {
	d := New()
	body := []byte(`<!DOCTYPE html><html><head></head><body><div>hi</div></body></html>`)
	k, _ := d.Detect(body, "", nil, "")
	if k != KindHTML {
		t.Errorf("got %v, want html", k)
	}
}

func TestDetectByContentAnalysisJSON(t *testing.T) {
	d := New()
	body := []byte(`{"items": [1, 2, 3], "ok": true}`)
	k, _ := d.Detect(body, "", nil, "")
	if k != KindJSON {
		t.Errorf("got %v, want json", k)
	}
}

func TestDetectConflictingSourcesPrefersSignature(t *testing.T) {
	d := New()
	// signature says PNG, header lies and says text/html.
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0}
	h := http.Header{}
	h.Set("Content-Type", "text/html")
	k, _ := d.Detect(png, "", h, "")
	if k != KindImage {
		t.Errorf("got %v, want image (signature should outweigh mime)", k)
	}
}

func TestIsBinaryDetectsNulByte(t *testing.T) {
	if !IsBinary([]byte("hello\x00world")) {
		t.Error("expected NUL-containing content to be binary")
	}
}

func TestIsBinaryAllowsPlainText(t *testing.T) {
	if IsBinary([]byte("the quick brown fox\njumped over\tthe lazy dog\r\n")) {
		t.Error("expected plain text to not be binary")
	}
}

func TestIsBinaryDetectsHighNonPrintableRatio(t *testing.T) {
	sample := make([]byte, 200)
	for i := range sample {
		sample[i] = byte(i % 20) // mostly control bytes < 32
	}
	if !IsBinary(sample) {
		t.Error("expected high-control-byte content to be binary")
	}
}

func TestDetectUnknownFallsBackToText(t *testing.T) {
	d := New()
	k, conf := d.Detect([]byte("plain unstructured words here"), "", nil, "")
	if k != KindText {
		t.Errorf("got %v, want text fallback", k)
	}
	if conf <= 0 {
		t.Error("expected nonzero confidence")
	}
}

func TestParseKindRecognizesNamesCaseInsensitively(t *testing.T) {
	cases := map[string]Kind{
		"JSON":             KindJSON,
		"html":             KindHTML,
		"application/json": KindJSON,
		"text/xml":         KindXML,
		"raw":              KindRaw,
	}
	for name, want := range cases {
		got, ok := ParseKind(name)
		if !ok || got != want {
			t.Errorf("ParseKind(%q) = (%v, %v), want (%v, true)", name, got, ok, want)
		}
	}
}

func TestParseKindRejectsUnknownName(t *testing.T) {
	if _, ok := ParseKind("application/octet-stream-bogus"); ok {
		t.Error("expected unrecognized content-type name to report false")
	}
}
