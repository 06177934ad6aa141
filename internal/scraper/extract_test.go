package scraper

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

func TestExtractSessionParams(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		html    string
		want    SessionParams
		wantErr error
	}{
		{
			name: "bare query",
			html: `<button id="previewButtonMain" data-preview="id=42&session=abc"></button>`,
			want: SessionParams{ID: "42", Session: "abc"},
		},
		{
			name: "absolute url with fragment",
			html: `<button id="previewButtonMain" data-preview="https://site.example/ebook/preview?id=1&amp;session=s1#top"></button>`,
			want: SessionParams{ID: "1", Session: "s1"},
		},
		{
			name:    "missing control",
			html:    `<button id="other" data-preview="id=1&session=2"></button>`,
			wantErr: ErrNoPreviewAvailable,
		},
		{
			name:    "missing session",
			html:    `<button id="previewButtonMain" data-preview="id=1"></button>`,
			wantErr: ErrNoPreviewAvailable,
		},
		{
			name:    "empty attribute",
			html:    `<button id="previewButtonMain" data-preview=""></button>`,
			wantErr: ErrNoPreviewAvailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ExtractSessionParams(tt.html)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractSessionParams() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ExtractSessionParams() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExtractTitleAndDownloadPath(t *testing.T) {
	t.Parallel()

	title, err := ExtractTitle(`<h1>
		Emma </h1><h1>Second</h1>`)
	if err != nil || title != "Emma" {
		t.Fatalf("ExtractTitle() = %q, %v", title, err)
	}
	if _, err = ExtractTitle(`<h2>not a title</h2>`); !errors.Is(err, ErrTitleNotFound) {
		t.Fatalf("ExtractTitle() error = %v", err)
	}

	href, err := ExtractDownloadPath(`<a class="btn-user">none</a><a class="btn-user" href="/download/1">ok</a>`)
	if err != nil || href != "/download/1" {
		t.Fatalf("ExtractDownloadPath() = %q, %v", href, err)
	}

	custom := Extractor{DownloadSelector: "a#get"}
	if href, err = custom.DownloadPath(`<a id="get" href="file.pdf">x</a>`); err != nil || href != "file.pdf" {
		t.Fatalf("custom DownloadPath() = %q, %v", href, err)
	}
}

func TestDecodeBody(t *testing.T) {
	t.Parallel()

	const payload = "<html>compressed</html>"
	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	_, _ = bw.Write([]byte(payload))
	_ = bw.Close()

	var zs bytes.Buffer
	zw, err := zstd.NewWriter(&zs)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	_, _ = zw.Write([]byte(payload))
	_ = zw.Close()

	tests := []struct {
		encoding string
		body     []byte
	}{
		{encoding: "", body: []byte(payload)},
		{encoding: "identity", body: []byte(payload)},
		{encoding: "br", body: br.Bytes()},
		{encoding: "ZSTD", body: zs.Bytes()},
	}
	for _, tt := range tests {
		rc, err := decodeBody(io.NopCloser(bytes.NewReader(tt.body)), tt.encoding)
		if err != nil {
			t.Fatalf("decodeBody(%q) error = %v", tt.encoding, err)
		}
		got, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read %q: %v", tt.encoding, err)
		}
		if errClose := rc.Close(); errClose != nil {
			t.Fatalf("close %q: %v", tt.encoding, errClose)
		}
		if string(got) != payload {
			t.Fatalf("decodeBody(%q) = %q", tt.encoding, got)
		}
	}

	if _, err = decodeBody(io.NopCloser(bytes.NewReader(nil)), "compress"); err == nil {
		t.Fatal("expected error for unsupported encoding")
	}
}
