package dumper

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestOpenArchiveRawPayloadPassthrough(t *testing.T) {
	m := simpleManifest()
	raw := buildPayload(t, m, nil, make([]byte, 4096))
	src := newMemSource(raw)

	got, err := OpenArchive(src)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	if got != ByteSource(src) {
		t.Fatal("OpenArchive on a raw CrAU stream should return the source unchanged")
	}
}

// buildZip writes a zip archive containing the given entries, each stored
// (not deflated) so OpenArchive accepts them, matching the random-access
// requirement of §4.2.
func buildZip(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		if err != nil {
			t.Fatalf("CreateHeader(%s): %v", name, err)
		}
		if _, err := w.Write(content); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip writer: %v", err)
	}
	return buf.Bytes()
}

func TestOpenArchiveZipFallback(t *testing.T) {
	m := simpleManifest()
	payload := buildPayload(t, m, nil, make([]byte, 4096))
	zipBytes := buildZip(t, map[string][]byte{
		"payload.bin":                   payload,
		"META-INF/com/android/metadata": []byte("ota-property=1\n"),
	})

	unwrapped, err := OpenArchive(newMemSource(zipBytes))
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	if unwrapped.Size() != int64(len(payload)) {
		t.Fatalf("unwrapped size = %d, want %d", unwrapped.Size(), len(payload))
	}

	got := make([]byte, len(payload))
	if _, err := io.ReadFull(unwrapped, got); err != nil {
		t.Fatalf("reading unwrapped payload: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("unwrapped payload bytes do not match the original entry")
	}
}

func TestOpenArchiveRejectsDeflatedPayload(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "payload.bin", Method: zip.Deflate})
	if err != nil {
		t.Fatalf("CreateHeader: %v", err)
	}
	if _, err := w.Write(make([]byte, 4096)); err != nil {
		t.Fatalf("writing entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip writer: %v", err)
	}

	_, err = OpenArchive(newMemSource(buf.Bytes()))
	if err == nil {
		t.Fatal("expected an error for a deflated payload.bin entry")
	}
}

func TestExtractArchiveMetadata(t *testing.T) {
	want := "ota-property=1\npost-build=foo\n"
	zipBytes := buildZip(t, map[string][]byte{
		"payload.bin":                   make([]byte, 4096),
		"META-INF/com/android/metadata": []byte(want),
	})

	got, err := ExtractArchiveMetadata(newMemSource(zipBytes))
	if err != nil {
		t.Fatalf("ExtractArchiveMetadata: %v", err)
	}
	if got != want {
		t.Fatalf("content = %q, want %q", got, want)
	}
}

func TestExtractArchiveMetadataMissingEntry(t *testing.T) {
	zipBytes := buildZip(t, map[string][]byte{"payload.bin": make([]byte, 4096)})
	_, err := ExtractArchiveMetadata(newMemSource(zipBytes))
	if err == nil {
		t.Fatal("expected an error when the metadata entry is absent")
	}
}
