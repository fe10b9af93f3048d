package assembler

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // the wallet manifest format mandates SHA-1
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/klauspost/compress/zip"
)

const (
	fileManifest  = "manifest.json"
	fileSignature = "signature"
	filePass      = "pass.json"
)

// bundle is the ordered set of files that make up one pass.
type bundle struct {
	names []string
	files map[string][]byte
}

func newBundle() *bundle {
	return &bundle{files: make(map[string][]byte)}
}

func (b *bundle) add(name string, data []byte) {
	if _, ok := b.files[name]; !ok {
		b.names = append(b.names, name)
	}
	b.files[name] = data
}

// manifest hashes every file added so far.
func (b *bundle) manifest() ([]byte, error) {
	sums := make(map[string]string, len(b.files))
	for name, data := range b.files {
		sum := sha1.Sum(data)
		sums[name] = hex.EncodeToString(sum[:])
	}
	out, err := json.MarshalIndent(sums, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return out, nil
}

func (b *bundle) zip(modified time.Time) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range b.names {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return nil, fmt.Errorf("zip %s: %w", name, err)
		}
		if _, err := w.Write(b.files[name]); err != nil {
			return nil, fmt.Errorf("zip %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}

func sortedNames(a Assets) []string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
