package anchor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ndn-io/sec2/pkg/ndnsec/cert"
	"github.com/ndn-io/sec2/pkg/ndnsec/name"
	"github.com/ndn-io/sec2/pkg/ndnsec/packet"
	"github.com/ndn-io/sec2/pkg/ndnsec/sec"
)

// decodeNameFromFile treats a fixture file's raw content as the
// certificate's name, keeping these tests independent of any real PEM/TLV
// codec (out of scope per spec.md §1).
func decodeNameFromFile(raw []byte) (*cert.V2, error) {
	d := packet.Data{
		Name:     name.Parse(string(raw)),
		MetaInfo: packet.MetaInfo{ContentType: packet.ContentTypeKey},
		Content:  []byte("pubkey"),
		Signature: packet.Signature{Info: packet.SignatureInfo{
			ValidityPeriod: &packet.ValidityPeriod{
				NotBefore: time.Now().Add(-time.Hour),
				NotAfter:  time.Now().Add(time.Hour),
			},
		}},
	}
	return cert.Decode(d)
}

func TestPEMLoaderListSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "anchor.pem")
	if err := os.WriteFile(path, []byte("/a/KEY/k1/self/v1"), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	l := PEMLoader{Decode: decodeNameFromFile}

	paths, err := l.List(path, false)
	if err != nil || len(paths) != 1 || paths[0] != path {
		t.Fatalf("expected [%s], got %v err=%v", path, paths, err)
	}

	cv, err := l.Load(path)
	if err != nil || !cv.Name().Equal(name.Parse("/a/KEY/k1/self/v1")) {
		t.Fatalf("expected the fixture's name to round-trip, got %v err=%v", cv, err)
	}
}

func TestPEMLoaderListMissingFileReturnsEmpty(t *testing.T) {
	l := PEMLoader{Decode: decodeNameFromFile}
	paths, err := l.List(filepath.Join(t.TempDir(), "missing.pem"), false)
	if err != nil || len(paths) != 0 {
		t.Fatalf("expected no error and no paths for a missing file, got %v err=%v", paths, err)
	}
}

func TestPEMLoaderListDirectorySortsAndSkipsSubdirs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.pem", "a.pem"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("/x"), 0o600); err != nil {
			t.Fatalf("writing fixture: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0o700); err != nil {
		t.Fatalf("creating subdir: %v", err)
	}
	l := PEMLoader{Decode: decodeNameFromFile}

	paths, err := l.List(dir, true)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{filepath.Join(dir, "a.pem"), filepath.Join(dir, "b.pem")}
	if len(paths) != len(want) || paths[0] != want[0] || paths[1] != want[1] {
		t.Fatalf("expected sorted files excluding subdirectories, got %v", paths)
	}
}

func TestPEMLoaderListMissingDirectoryReturnsEmpty(t *testing.T) {
	l := PEMLoader{Decode: decodeNameFromFile}
	paths, err := l.List(filepath.Join(t.TempDir(), "missing-dir"), true)
	if err != nil || len(paths) != 0 {
		t.Fatalf("expected no error and no paths for a missing directory, got %v err=%v", paths, err)
	}
}

func TestPEMLoaderLoadPropagatesDecodeError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.pem")
	if err := os.WriteFile(path, []byte(""), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	l := PEMLoader{Decode: func([]byte) (*cert.V2, error) {
		return nil, sec.New(sec.CodeMalformedCertificate, "fixture: always fails to decode")
	}}
	if _, err := l.Load(path); err == nil {
		t.Fatal("expected the decode error to propagate")
	}
}
