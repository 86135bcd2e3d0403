package filemap

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockRanges(t *testing.T) {
	extents := []Extent{
		{Logical: 0, Physical: 4096, Length: 4096},
		{Logical: 4096, Physical: 1048576, Length: 100}, // partial block
		{Logical: 8192, Physical: 0, Length: 0},         // empty, skipped
	}
	got := BlockRanges(extents, 512)
	assert.Equal(t, []BlockRange{
		{Start: 8, Count: 8},
		{Start: 2048, Count: 1},
	}, got)
}

func TestBlockRangesStraddlingBoundary(t *testing.T) {
	// 100 bytes starting 10 bytes before a block boundary touch two blocks.
	got := BlockRanges([]Extent{{Physical: 502, Length: 100}}, 512)
	assert.Equal(t, []BlockRange{{Start: 0, Count: 2}}, got)
}

func TestAffected(t *testing.T) {
	extents := []Extent{
		{Physical: 512 * 100, Length: 512 * 10}, // blocks [100,110)
		{Physical: 512 * 500, Length: 512 * 2},  // blocks [500,502)
	}
	addrs := []uint64{501, 99, 105, 110, 100}
	got := Affected(extents, addrs, 512)
	assert.Equal(t, []uint64{100, 105, 501}, got, "only addresses inside the extents, ascending")

	assert.Empty(t, Affected(extents, []uint64{0, 99, 110}, 512))
	assert.Empty(t, Affected(nil, addrs, 512))
}

// fakeExtents maps every file to extents derived from its name: a.txt gets
// blocks [100,110), b.txt gets [500,502), anything else is unmappable.
func fakeExtents(path string) ([]Extent, error) {
	switch filepath.Base(path) {
	case "a.txt":
		return []Extent{{Physical: 512 * 100, Length: 512 * 10}}, nil
	case "b.txt":
		return []Extent{{Physical: 512 * 500, Length: 512 * 2}}, nil
	}
	return nil, fmt.Errorf("no mapping for %s", path)
}

func walkTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	for _, name := range []string{"a.txt", filepath.Join("sub", "b.txt"), "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644))
	}
	return root
}

func TestWalkRanges(t *testing.T) {
	orig := extentsOf
	extentsOf = fakeExtents
	defer func() { extentsOf = orig }()

	root := walkTree(t)
	got, err := WalkRanges(root, 512)
	require.NoError(t, err)

	byPath := map[string][]BlockRange{}
	for _, f := range got {
		byPath[filepath.Base(f.Path)] = f.Ranges
	}
	assert.Equal(t, []BlockRange{{Start: 100, Count: 10}}, byPath["a.txt"])
	assert.Equal(t, []BlockRange{{Start: 500, Count: 2}}, byPath["b.txt"])
	assert.NotContains(t, byPath, "c.txt", "unmappable files are skipped")
}

func TestFindAffected(t *testing.T) {
	orig := extentsOf
	extentsOf = fakeExtents
	defer func() { extentsOf = orig }()

	root := walkTree(t)
	got, err := FindAffected(root, []uint64{105, 9999}, 512)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a.txt", filepath.Base(got[0]))

	got, err = FindAffected(root, []uint64{42}, 512)
	require.NoError(t, err)
	assert.Empty(t, got)
}
