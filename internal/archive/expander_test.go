package archive_test

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sejmwatch/sejmaudit/internal/archive"
)

func buildZip(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, data := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestExpandNonArchiveIsIdentity(t *testing.T) {
	data := []byte("plain content")
	entries := archive.Expand(data, "doc.pdf", "I.1.A", "display")
	require.Len(t, entries, 1)
	assert.Equal(t, "doc.pdf", entries[0].Name)
	assert.Equal(t, data, entries[0].Data)
	assert.Equal(t, "I.1.A", entries[0].ID)
	assert.Equal(t, "display", entries[0].Display)
	assert.False(t, entries[0].Corrupt)
}

func TestExpandFlatZip(t *testing.T) {
	// Ordered zip writing is deterministic, so build entries one by one.
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range []string{"first.txt", "second.txt", "dir/"} {
		if name == "dir/" {
			_, err := w.Create(name)
			require.NoError(t, err)
			continue
		}
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(name))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	entries := archive.Expand(buf.Bytes(), "pack.zip", "I.1.A", "pack")
	require.Len(t, entries, 2)
	assert.Equal(t, "first.txt", entries[0].Name)
	assert.Equal(t, "I.1.A.1", entries[0].ID)
	assert.Equal(t, "second.txt", entries[1].Name)
	assert.Equal(t, "I.1.A.2", entries[1].ID)
	assert.Equal(t, []byte("first.txt"), entries[0].Data)
}

func TestExpandNestedZipPreservesLeafCount(t *testing.T) {
	inner := buildZip(t, map[string][]byte{
		"deep1.txt": []byte("one"),
		"deep2.txt": []byte("two"),
	})
	outer := buildZip(t, map[string][]byte{
		"top.txt":   []byte("top"),
		"inner.zip": inner,
	})

	entries := archive.Expand(outer, "outer.zip", "II.1.B", "outer")
	// 1 top-level leaf + 2 nested leaves, regardless of nesting depth.
	require.Len(t, entries, 3)

	ids := map[string]bool{}
	for _, e := range entries {
		assert.False(t, e.Corrupt)
		assert.False(t, ids[e.ID], "duplicate id %s", e.ID)
		ids[e.ID] = true
	}
}

func TestExpandCorruptArchiveIsOpaque(t *testing.T) {
	entries := archive.Expand([]byte("definitely not a zip"), "broken.zip", "I.1.A", "broken")
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Corrupt)
	assert.Equal(t, "I.1.A", entries[0].ID)
	assert.Equal(t, []byte("definitely not a zip"), entries[0].Data)
}

func TestExt(t *testing.T) {
	assert.Equal(t, "pdf", archive.Ext("Ustawa.PDF"))
	assert.Equal(t, "zip", archive.Ext("a/b/pack.zip"))
	assert.Equal(t, "", archive.Ext("noext"))
	assert.True(t, archive.IsArchive("zip"))
	assert.False(t, archive.IsArchive("pdf"))
}
