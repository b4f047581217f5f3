package anchor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ndn-io/sec2/pkg/ndnsec/cert"
)

// PEMLoader is the default FileLoader: it decodes certificates encoded
// the way cmd/secvalidate reads them from disk, via a caller-supplied
// decode function (kept pluggable so this package stays independent of
// the TLV codec, per spec.md §1).
type PEMLoader struct {
	Decode func(raw []byte) (*cert.V2, error)
}

func (l PEMLoader) List(path string, isDirectory bool) ([]string, error) {
	if !isDirectory {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, err
		}
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		out = append(out, filepath.Join(path, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func (l PEMLoader) Load(path string) (*cert.V2, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return l.Decode(raw)
}
