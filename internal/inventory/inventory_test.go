package inventory

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/blakesmith/ar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stubgen/internal/diag"
	"stubgen/internal/symbol"
)

var (
	darwinFilter = Filter{Decoration: "_", InternalSuffixes: []string{"_stub"}}
	elfFilter    = Filter{InternalSuffixes: []string{"_stub"}}
)

var elfArchiveSymbols = []symbol.Name{
	"kk_CallsOut",
	"kk_CreateDevice",
	"kk_DestroyDevice",
	"vk_common_QueuePresentKHR",
}

func readFixtureArchive(t *testing.T, name string, f Filter) (symbol.Set, error) {
	t.Helper()
	file, err := os.Open(filepath.Join("testdata", name))
	require.NoError(t, err)
	defer file.Close()
	return ReadArchive(file, f)
}

func TestParseNM_Darwin(t *testing.T) {
	out, err := os.ReadFile(filepath.Join("testdata", "nm_darwin.txt"))
	require.NoError(t, err)

	set := ParseNM(out, darwinFilter)

	assert.Equal(t, []symbol.Name{
		"kk_CreateInstance",
		"kk_DestroyInstance",
		"vk_common_EnumeratePhysicalDevices",
		"vk_common_GetDeviceQueue",
	}, set.Sorted())
}

func TestParseNM_GNU(t *testing.T) {
	out, err := os.ReadFile(filepath.Join("testdata", "nm_gnu.txt"))
	require.NoError(t, err)

	set := ParseNM(out, darwinFilter)

	t.Run("version suffix stripped", func(t *testing.T) {
		assert.True(t, set.Has("kk_DestroyDevice"))
	})
	t.Run("weak, undefined and cold symbols excluded", func(t *testing.T) {
		assert.False(t, set.Has("kk_weak_helper"))
		assert.False(t, set.Has("memcpy"))
		assert.False(t, set.Has("kk_GetDeviceQueue"))
		assert.Equal(t, 2, set.Len())
	})
}

func TestNMReader_MissingArtifact(t *testing.T) {
	r := NewNMReader("", darwinFilter)
	set, err := r.Read(context.Background(), filepath.Join(t.TempDir(), "missing.a"))

	require.Error(t, err)
	assert.ErrorIs(t, err, diag.ErrMissingArtifact)
	assert.False(t, diag.Fatal(err))
	require.NotNil(t, set)
	assert.Equal(t, 0, set.Len())
}

func TestNMReader_FakeTool(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in for nm")
	}
	dir := t.TempDir()
	lib := filepath.Join(dir, "lib.a")
	require.NoError(t, os.WriteFile(lib, []byte("!<arch>\n"), 0644))

	fixture, err := filepath.Abs(filepath.Join("testdata", "nm_darwin.txt"))
	require.NoError(t, err)
	script := filepath.Join(dir, "fake-nm")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ncat "+fixture+"\n"), 0755))

	set, err := NewNMReader(script, darwinFilter).Read(context.Background(), lib)
	require.NoError(t, err)
	assert.True(t, set.Has("kk_CreateInstance"))
	assert.Equal(t, 4, set.Len())

	t.Run("failing tool degrades to empty set", func(t *testing.T) {
		failing := filepath.Join(dir, "failing-nm")
		require.NoError(t, os.WriteFile(failing, []byte("#!/bin/sh\necho broken >&2\nexit 3\n"), 0755))

		set, err := NewNMReader(failing, darwinFilter).Read(context.Background(), lib)
		assert.ErrorIs(t, err, diag.ErrExternalProcess)
		assert.Contains(t, err.Error(), "broken")
		assert.Equal(t, 0, set.Len())
	})
}

func TestNMReader_NativeFallback(t *testing.T) {
	lib, err := filepath.Abs(filepath.Join("testdata", "libkk_gnu.a"))
	require.NoError(t, err)

	r := NewNMReader(filepath.Join(t.TempDir(), "no-such-nm"), elfFilter)
	set, err := r.Read(context.Background(), lib)
	require.NoError(t, err)
	assert.Equal(t, elfArchiveSymbols, set.Sorted())
}

// libkk_gnu.a and libkk_noindex.a are `ar rcs` and `ar rcS` builds of kk_device.c
// and wsi_common_entrypoints.c.
func TestReadArchive_GNU(t *testing.T) {
	for _, name := range []string{"libkk_gnu.a", "libkk_noindex.a"} {
		t.Run(name, func(t *testing.T) {
			set, err := readFixtureArchive(t, name, elfFilter)
			require.NoError(t, err)
			assert.Equal(t, elfArchiveSymbols, set.Sorted())

			t.Run("static, data, weak, undefined and helper symbols excluded", func(t *testing.T) {
				for _, n := range []symbol.Name{"kk_helper", "kk_Counter", "vk_common_name", "kk_WeakHook", "kk_Undefined", "kk_Trace_stub"} {
					assert.False(t, set.Has(n), n)
				}
			})
		})
	}
}

// libkk_darwin.a is written by gen_darwin_archive.py: a BSD archive with inline
// member names holding one Mach-O object.
func TestReadArchive_Darwin(t *testing.T) {
	set, err := readFixtureArchive(t, "libkk_darwin.a", darwinFilter)
	require.NoError(t, err)
	assert.Equal(t, []symbol.Name{"kk_EnumerateInstanceVersion", "kk_GetDeviceProcAddr"}, set.Sorted())
}

func TestReadArchive_NonObjectMember(t *testing.T) {
	var buf bytes.Buffer
	w := ar.NewWriter(&buf)
	require.NoError(t, w.WriteGlobalHeader())
	payload := []byte("not an object file")
	require.NoError(t, w.WriteHeader(&ar.Header{Name: "notes.txt", ModTime: time.Unix(0, 0), Size: int64(len(payload)), Mode: 0644}))
	_, err := w.Write(payload)
	require.NoError(t, err)

	set, err := ReadArchive(&buf, elfFilter)
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
}

func TestReadArchive_Malformed(t *testing.T) {
	valid, err := os.ReadFile(filepath.Join("testdata", "libkk_gnu.a"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		data    []byte
		wantErr string
	}{
		{name: "not an archive", data: []byte("ELF"), wantErr: "not an ar archive"},
		{name: "bad header magic", data: append([]byte("!<arch>\n"), bytes.Repeat([]byte{' '}, 60)...), wantErr: "bad member header"},
		{name: "bad size", data: []byte("!<arch>\n" + "x.o/            0           0     0     0       12ab      `\n"), wantErr: "bad member size"},
		{name: "truncated member", data: valid[:len(valid)-100], wantErr: "truncated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var set symbol.Set
			require.NotPanics(t, func() {
				set, err = ReadArchive(bytes.NewReader(tt.data), elfFilter)
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.NotNil(t, set)
		})
	}

	t.Run("reader degrades to an empty set", func(t *testing.T) {
		lib := filepath.Join(t.TempDir(), "lib.a")
		require.NoError(t, os.WriteFile(lib, valid[:len(valid)-100], 0644))
		set, err := NewNMReader(filepath.Join(t.TempDir(), "no-such-nm"), elfFilter).Read(context.Background(), lib)
		assert.ErrorIs(t, err, diag.ErrExternalProcess)
		assert.False(t, diag.Fatal(err))
		assert.Equal(t, 0, set.Len())
	})
}

func TestStripBSDName(t *testing.T) {
	data := []byte("kk_device.o\x00\x00\x00\x00\x00OBJECT")
	assert.Equal(t, []byte("OBJECT"), stripBSDName("#1/16", data))
	assert.Equal(t, data, stripBSDName("kk_device.o/", data))
	assert.Equal(t, data, stripBSDName("#1/999", data))
}

func TestStatic(t *testing.T) {
	s := Static(symbol.NewSet("a"))
	set, err := s.Read(context.Background(), "ignored")
	require.NoError(t, err)
	set.Add("b")
	assert.False(t, symbol.Set(s).Has("b"), "callers get a copy")
}
