package generator

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSpec() FileSpec {
	return FileSpec{
		Title:       "Vulkan Entrypoint Stubs",
		Description: "Stubs for entry points the driver declares but does not define.",
		Command:     "stubgen generate entrypoints",
		Includes:    []string{"vulkan/vulkan.h", "<stddef.h>", `"kk_private.h"`},
		Preamble:    "void vk_entrypoint_stub(void) {}",
	}
}

func TestRender(t *testing.T) {
	fns := []Function{
		{Name: "kk_A", Signature: "VKAPI_ATTR void VKAPI_CALL kk_A(void)"},
		{Name: "kk_B", Signature: "VKAPI_ATTR void VKAPI_CALL kk_B(void)", Body: []string{"(void)0;"}},
	}
	out := string(Render(sampleSpec(), fns))

	assert.True(t, strings.HasPrefix(out, "/*\n * Vulkan Entrypoint Stubs\n *\n * AUTO-GENERATED FILE - DO NOT EDIT MANUALLY\n * Generated by: stubgen generate entrypoints\n"))
	assert.Contains(t, out, "#include <vulkan/vulkan.h>\n#include <stddef.h>\n#include \"kk_private.h\"\n\n")
	assert.Contains(t, out, "void vk_entrypoint_stub(void) {}\n\n")
	assert.True(t, strings.HasSuffix(out, "kk_A(void)\n{\n}\n\nVKAPI_ATTR void VKAPI_CALL kk_B(void)\n{\n    (void)0;\n}\n"))

	assert.Equal(t, out, string(Render(sampleSpec(), fns)), "rendering is deterministic")
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gen", "stubs.c")

	require.NoError(t, WriteFile(path, []byte("first\n")))
	require.NoError(t, WriteFile(path, []byte("second\n")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
	}

	t.Run("missing directory cannot be created", func(t *testing.T) {
		blocker := filepath.Join(dir, "file")
		require.NoError(t, os.WriteFile(blocker, nil, 0644))
		assert.Error(t, WriteFile(filepath.Join(blocker, "stubs.c"), []byte("x")))
	})
}
