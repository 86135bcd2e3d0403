// Package filemap maps files to the device blocks backing them, so a
// bad-block list can be turned into a list of affected files. Block
// addresses are interpreted against the filesystem's backing device; when
// the list was recorded against a whole disk, the caller is responsible for
// subtracting the partition offset.
package filemap

import (
	"io/fs"
	"path/filepath"
	"sort"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("bbf/filemap")

// Extent is one physically contiguous run of file data, in bytes.
type Extent struct {
	Logical  uint64 // byte offset within the file
	Physical uint64 // byte offset on the backing device
	Length   uint64 // bytes
}

// BlockRange is a run of logical blocks.
type BlockRange struct {
	Start uint64
	Count uint64
}

// BlockRanges converts byte extents to logical block ranges on the backing
// device. Partial blocks at either end count as whole blocks.
func BlockRanges(extents []Extent, blockSize uint64) []BlockRange {
	out := make([]BlockRange, 0, len(extents))
	for _, e := range extents {
		if e.Length == 0 {
			continue
		}
		first := e.Physical / blockSize
		last := (e.Physical + e.Length - 1) / blockSize
		out = append(out, BlockRange{Start: first, Count: last - first + 1})
	}
	return out
}

// Affected returns the subset of addrs that fall inside the extents, in
// ascending order.
func Affected(extents []Extent, addrs []uint64, blockSize uint64) []uint64 {
	ranges := BlockRanges(extents, blockSize)
	var out []uint64
	for _, a := range addrs {
		for _, r := range ranges {
			if a >= r.Start && a < r.Start+r.Count {
				out = append(out, a)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// extentsOf is indirected so tests can walk a tree without a filesystem
// that answers FIEMAP.
var extentsOf = FileExtents

// FindAffected walks root and returns the files whose extents contain any
// of the listed addresses. Unreadable or unmappable files are skipped, not
// fatal; a recovery sweep should report what it can.
func FindAffected(root string, addrs []uint64, blockSize uint64) ([]string, error) {
	var out []string
	err := walkRegular(root, func(p string, extents []Extent) {
		if len(Affected(extents, addrs, blockSize)) > 0 {
			out = append(out, p)
		}
	})
	return out, err
}

// FileRanges pairs a file with the block ranges backing its data.
type FileRanges struct {
	Path   string
	Ranges []BlockRange
}

// WalkRanges walks root and returns every regular file together with the
// block ranges it occupies.
func WalkRanges(root string, blockSize uint64) ([]FileRanges, error) {
	var out []FileRanges
	err := walkRegular(root, func(p string, extents []Extent) {
		out = append(out, FileRanges{Path: p, Ranges: BlockRanges(extents, blockSize)})
	})
	return out, err
}

func walkRegular(root string, visit func(path string, extents []Extent)) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Debugw("skipping", "path", p, "err", err)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		extents, err := extentsOf(p)
		if err != nil {
			log.Debugw("cannot map", "path", p, "err", err)
			return nil
		}
		visit(p, extents)
		return nil
	})
}
