// Package manifest reads and writes the listing and version files that
// describe a synchronized tree.
//
// The listing file holds one record per line in the form
//
//	relativePath fingerprintHex sizeBytes
//
// and the version file holds a single decimal integer. Both exist locally
// under the sync root and remotely under the key prefix.
package manifest

import (
	"sort"

	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/localfs"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/objtypes"
)

// NoFingerprint stands in for the fingerprint of a file that could not be
// read. It never matches a content hash, so the file is uploaded whenever
// the listing is diffed against the remote.
const NoFingerprint = "-"

// Record describes one file in a manifest.
type Record struct {
	// Path is relative to the sync root and uses forward slashes
	Path string

	// Fingerprint is the lowercase hex content hash
	Fingerprint string

	// Size is the file size in bytes
	Size int64
}

// Manifest is an ordered set of records with a path index, paired with the
// version marker it was published under.
type Manifest struct {
	Version objtypes.Version

	records []Record
	index   map[string]int
}

// New builds a manifest from records. If a path repeats, the later record
// replaces the earlier one in place.
func New(version objtypes.Version, records []Record) *Manifest {
	m := &Manifest{
		Version: version,
		records: make([]Record, 0, len(records)),
		index:   make(map[string]int, len(records)),
	}
	for _, r := range records {
		m.Add(r)
	}
	return m
}

// Empty returns a manifest with no records and an unknown version.
func Empty() *Manifest {
	return New(objtypes.Unknown(), nil)
}

// Add inserts r, replacing any record with the same path.
func (m *Manifest) Add(r Record) {
	if i, ok := m.index[r.Path]; ok {
		m.records[i] = r
		return
	}
	m.index[r.Path] = len(m.records)
	m.records = append(m.records, r)
}

// Lookup returns the record for path.
func (m *Manifest) Lookup(path string) (Record, bool) {
	i, ok := m.index[path]
	if !ok {
		return Record{}, false
	}
	return m.records[i], true
}

// Records returns the records in insertion order.
func (m *Manifest) Records() []Record {
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// Len returns the number of records.
func (m *Manifest) Len() int {
	return len(m.records)
}

// TotalSize returns the sum of record sizes.
func (m *Manifest) TotalSize() int64 {
	var total int64
	for _, r := range m.records {
		total += r.Size
	}
	return total
}

// Sorted returns a copy of the manifest with records ordered by path.
func (m *Manifest) Sorted() *Manifest {
	records := m.Records()
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	return New(m.Version, records)
}

// LocalRecord is a record paired with the local file it describes.
type LocalRecord struct {
	Record

	// LocalPath is the path on the local filesystem
	LocalPath string
}

// Localize pairs every record of m with its file under root.
func Localize(fs *localfs.FS, root string, m *Manifest) []LocalRecord {
	out := make([]LocalRecord, 0, m.Len())
	for _, r := range m.records {
		out = append(out, LocalRecord{Record: r, LocalPath: fs.Join(root, r.Path)})
	}
	return out
}
