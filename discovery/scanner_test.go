package discovery

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func namesOf(found []Descriptor) []string {
	var names = make([]string, len(found))
	for i, d := range found {
		names[i] = d.Name
	}
	sort.Strings(names)
	return names
}

func TestScanRootFindsContainers(t *testing.T) {
	var root = t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "Synth One.vst3", "Contents"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "nested", "Delay.vst3"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "nested", "not-a-plugin"), 0o755))

	var s = New([]string{root}, nil)
	var found = s.ScanRoot(root)

	assert.Equal(t, []string{"Delay", "Synth One"}, namesOf(found))
}

func TestScanRootDoesNotDescendIntoContainer(t *testing.T) {
	var root = t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "Nested.vst3", "Inner.vst3"), 0o755))

	var s = New([]string{root}, nil)
	var found = s.ScanRoot(root)

	require.Len(t, found, 1)
	assert.Equal(t, "Nested", found[0].Name)
}

func TestScanRootStubDescriptorFields(t *testing.T) {
	var root = t.TempDir()
	var pluginPath = filepath.Join(root, "Reverb.vst3")
	require.NoError(t, os.MkdirAll(pluginPath, 0o755))

	var s = New([]string{root}, nil)
	var found = s.ScanRoot(root)

	require.Len(t, found, 1)
	var d = found[0]
	assert.Equal(t, "Reverb", d.Name)
	assert.Equal(t, UnknownVendor, d.Vendor)
	assert.Equal(t, DefaultCategory, d.Category)
	assert.Equal(t, pluginPath, d.Path)
	assert.Equal(t, "Reverb", d.UID)
}

func TestScanRootMissingRootIsSkippedNotFatal(t *testing.T) {
	var s = New([]string{"/nonexistent/does/not/exist"}, nil)
	assert.Empty(t, s.ScanRoot("/nonexistent/does/not/exist"))
}

func TestScanCombinesAllRoots(t *testing.T) {
	var rootA = t.TempDir()
	var rootB = t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(rootA, "A.vst3"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(rootB, "B.vst3"), 0o755))

	var s = New([]string{rootA, rootB}, nil)
	assert.Equal(t, []string{"A", "B"}, namesOf(s.Scan()))
}

func TestDefaultRootsUnderPrefix(t *testing.T) {
	var roots = DefaultRoots("/home/user/.wine")
	require.Len(t, roots, 2)
	for _, r := range roots {
		assert.Contains(t, r, "/home/user/.wine")
		assert.Contains(t, r, "VST3")
	}
}
