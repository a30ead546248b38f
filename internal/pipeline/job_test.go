package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stubgen/internal/catalog"
	"stubgen/internal/config"
	"stubgen/internal/diag"
	"stubgen/internal/generator"
	"stubgen/internal/inventory"
	"stubgen/internal/surface"
	"stubgen/internal/symbol"
)

func fixture(t *testing.T, root, name, rel string) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	dst := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0755))
	require.NoError(t, os.WriteFile(dst, data, 0644))
}

func testConfig(t *testing.T, root string, jobs ...config.Job) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Project.Root = root
	cfg.Project.Artifact = "lib/libkk.a"
	cfg.Jobs = jobs
	require.NoError(t, cfg.Validate())
	return cfg
}

func newTestGenerator(t *testing.T, cfg *config.Config, inv inventory.Reader) (*Generator, *diag.Logger) {
	t.Helper()
	log := diag.Discard()
	g, err := NewGenerator(cfg, inv, log)
	require.NoError(t, err)
	return g, log
}

func surfaceNames(s *surface.Surface) []symbol.Name {
	out := make([]symbol.Name, 0, s.Len())
	for _, e := range s.Entries {
		out = append(out, e.Name)
	}
	return out
}

func entrypointsJob() config.Job {
	return config.Job{
		Name:      "entrypoints",
		Title:     "Vulkan Entrypoint Stubs",
		Output:    "src/vulkan_entrypoint_stubs.c",
		Prefix:    "kk_",
		Alternate: config.Alternate{Prefix: "vk_common_"},
		Forwards:  map[string]string{"kk_AcquireNextImageKHR": "wsi_AcquireNextImageKHR"},
		Sources: []config.Source{
			{Kind: config.SourceDeclarations, Path: "include/kk_entrypoints.h", Required: true},
		},
		Includes: []string{"vulkan/vulkan.h", "stddef.h"},
	}
}

func TestGenerator_Run_Entrypoints(t *testing.T) {
	root := t.TempDir()
	fixture(t, root, "kk_entrypoints.h", "include/kk_entrypoints.h")
	cfg := testConfig(t, root, entrypointsJob())
	inv := inventory.Static(symbol.NewSet("kk_CreateInstance", "vk_common_GetDeviceQueue", "wsi_AcquireNextImageKHR"))
	g, _ := newTestGenerator(t, cfg, inv)

	job, err := cfg.Job("entrypoints")
	require.NoError(t, err)
	res, err := g.Run(context.Background(), job)
	require.NoError(t, err)
	require.True(t, res.Written)

	data, err := os.ReadFile(filepath.Join(root, "src/vulkan_entrypoint_stubs.c"))
	require.NoError(t, err)
	out := string(data)
	assert.Equal(t, res.Data, data)

	assert.Contains(t, out, "AUTO-GENERATED FILE - DO NOT EDIT MANUALLY")
	assert.Contains(t, out, "Generated by: stubgen generate entrypoints")
	assert.Contains(t, out, "#include <vulkan/vulkan.h>\n#include <stddef.h>\n")

	// satisfied entries emit nothing
	assert.NotContains(t, out, "kk_CreateInstance")
	// denied platforms are dropped entirely
	assert.NotContains(t, out, "Android")

	assert.Contains(t, out, "VKAPI_ATTR void VKAPI_CALL kk_GetDeviceQueue(VkDevice device, uint32_t queueFamilyIndex, uint32_t queueIndex, VkQueue* pQueue)")
	assert.Contains(t, out, "    vk_common_GetDeviceQueue(device, queueFamilyIndex, queueIndex, pQueue);\n")
	assert.Contains(t, out, "    return wsi_AcquireNextImageKHR(device, swapchain, timeout, semaphore, fence, pImageIndex);\n")
	assert.Contains(t, out, "    (void)blendConstants;\n")
	assert.Contains(t, out, "VKAPI_ATTR PFN_vkVoidFunction VKAPI_CALL kk_GetInstanceProcAddr(VkInstance instance, const char* pName)")
	assert.Contains(t, out, "    return NULL;\n")

	counts := res.Plan.Counts()
	assert.Equal(t, 1, counts[symbol.Satisfied])
	assert.Equal(t, 2, counts[symbol.Forward])
	assert.Equal(t, 4, counts[symbol.Stub])

	// reruns over unchanged inputs are byte-identical
	again, err := g.Run(context.Background(), job)
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(root, "src/vulkan_entrypoint_stubs.c"))
	require.NoError(t, err)
	assert.Equal(t, data, second)
	assert.Equal(t, res.Digest, again.Digest)
}

func TestGenerator_Run_NormalizesPlatformTypes(t *testing.T) {
	root := t.TempDir()
	fixture(t, root, "kk_entrypoints.h", "include/kk_entrypoints.h")
	cfg := testConfig(t, root, entrypointsJob())
	g, _ := newTestGenerator(t, cfg, inventory.Static(symbol.NewSet()))

	res, err := g.Run(context.Background(), &cfg.Jobs[0])
	require.NoError(t, err)
	out := string(res.Data)

	assert.NotContains(t, out, "VkXlibSurfaceCreateInfoKHR")
	assert.NotContains(t, out, "Display*")
	assert.NotContains(t, out, "VisualID visualID")
	assert.Contains(t, out, "kk_CreateXlibSurfaceKHR(VkInstance instance, const void* pCreateInfo, const VkAllocationCallbacks* pAllocator, VkSurfaceKHR* pSurface)")
	assert.Contains(t, out, "void* dpy, uint32_t visualID)")
	assert.Equal(t, 2, res.Normalized)
}

// An empty inventory stubs the entry and its derived restricted-context sibling.
func TestGenerator_Run_CompanionStubs(t *testing.T) {
	root := t.TempDir()
	header := "VKAPI_ATTR VkResult VKAPI_CALL vk_cmd_enqueue_CreateBuffer(VkDevice device, const VkBufferCreateInfo* pCreateInfo, const VkAllocationCallbacks* pAllocator, VkBuffer* pBuffer);\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "cmd_enqueue.h"), []byte(header), 0644))

	cfg := testConfig(t, root, config.Job{
		Name:      "cmd_enqueue",
		Output:    "out/cmd_enqueue_stubs.c",
		Prefix:    "vk_cmd_enqueue_",
		Companion: surface.Companion{Infix: "unless_primary_", Scope: surface.ScopeAll},
		Sources:   []config.Source{{Kind: config.SourceDeclarations, Path: "cmd_enqueue.h"}},
	})
	g, _ := newTestGenerator(t, cfg, inventory.Static(symbol.NewSet()))

	res, err := g.Run(context.Background(), &cfg.Jobs[0])
	require.NoError(t, err)
	out := string(res.Data)

	assert.Equal(t, 2, res.Surface.Len())
	assert.Equal(t, 1, res.Surface.Derived)
	assert.Contains(t, out, "VKAPI_ATTR VkResult VKAPI_CALL vk_cmd_enqueue_CreateBuffer(VkDevice device,")
	assert.Contains(t, out, "VKAPI_ATTR VkResult VKAPI_CALL vk_cmd_enqueue_unless_primary_CreateBuffer(VkDevice device,")
	assert.Equal(t, 2, strings.Count(out, "return VK_ERROR_EXTENSION_NOT_PRESENT;"))
}

func TestGenerator_Run_MissingArtifact(t *testing.T) {
	root := t.TempDir()
	fixture(t, root, "kk_entrypoints.h", "include/kk_entrypoints.h")
	cfg := testConfig(t, root, entrypointsJob())
	cfg.Tools.NM = "stubgen-test-no-such-nm"
	g, log := newTestGenerator(t, cfg, nil)

	res, err := g.Run(context.Background(), &cfg.Jobs[0])
	require.NoError(t, err)

	assert.Equal(t, 0, res.Inventory.Len())
	for _, d := range res.Plan.Dispositions {
		assert.Equal(t, symbol.Stub, d.Kind, d.Entry.Name)
	}

	var codes []diag.Code
	for _, w := range log.Warnings() {
		codes = append(codes, w.Code)
	}
	assert.Contains(t, codes, diag.CodeMissingArtifact)
}

func TestGenerator_Run_RequiredSourceMissing(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root, entrypointsJob())
	g, _ := newTestGenerator(t, cfg, inventory.Static(symbol.NewSet()))

	_, err := g.Run(context.Background(), &cfg.Jobs[0])
	require.ErrorIs(t, err, diag.ErrNoSurface)
	assert.Contains(t, err.Error(), "kk_entrypoints.h")

	_, statErr := os.Stat(filepath.Join(root, "src/vulkan_entrypoint_stubs.c"))
	assert.True(t, os.IsNotExist(statErr))
}

func commonJob() config.Job {
	return config.Job{
		Name:   "common",
		Output: "src/vk_common_stubs.c",
		Prefix: "vk_common_",
		Sources: []config.Source{
			{Kind: config.SourceScan, Path: "runtime/vk_common_entrypoints.c"},
			{Kind: config.SourceDiagnostics, Path: "tmp/missing_common.txt", When: config.WhenFallback},
			{Kind: config.SourceNames, Names: []string{"GetDeviceQueue", "CmdPushDescriptorSet"}, When: config.WhenFallback},
		},
	}
}

func TestGenerator_Reconcile_FallbackSources(t *testing.T) {
	root := t.TempDir()
	fixture(t, root, "missing_common.txt", "tmp/missing_common.txt")
	cfg := testConfig(t, root, commonJob())
	g, log := newTestGenerator(t, cfg, inventory.Static(symbol.NewSet()))

	res, err := g.Reconcile(context.Background(), &cfg.Jobs[0])
	require.NoError(t, err)
	assert.Equal(t, []symbol.Name{
		"vk_common_CmdBindVertexBuffers",
		"vk_common_CmdPushDescriptorSet",
		"vk_common_GetDeviceQueue",
	}, surfaceNames(res.Surface))

	// names only the inline list knows stay unverified
	assert.Equal(t, []symbol.Name{"vk_common_CmdPushDescriptorSet"}, res.Surface.Unverified)
	var missing int
	for _, w := range log.Warnings() {
		if w.Code == diag.CodeMissingSource {
			missing++
		}
	}
	assert.Equal(t, 1, missing)
}

func TestGenerator_Reconcile_PrimaryWinsOverFallback(t *testing.T) {
	root := t.TempDir()
	fixture(t, root, "vk_common_entrypoints.c", "runtime/vk_common_entrypoints.c")
	fixture(t, root, "missing_common.txt", "tmp/missing_common.txt")
	cfg := testConfig(t, root, commonJob())
	g, _ := newTestGenerator(t, cfg, inventory.Static(symbol.NewSet("vk_common_GetDeviceQueue")))

	res, err := g.Reconcile(context.Background(), &cfg.Jobs[0])
	require.NoError(t, err)
	assert.Equal(t, []symbol.Name{
		"vk_common_CmdBindVertexBuffers",
		"vk_common_CmdDrawIndirectCount",
		"vk_common_GetDeviceQueue",
	}, surfaceNames(res.Surface))

	d, ok := res.Plan.Lookup("vk_common_GetDeviceQueue")
	require.True(t, ok)
	assert.Equal(t, symbol.Satisfied, d.Kind)
	d, ok = res.Plan.Lookup("vk_common_CmdDrawIndirectCount")
	require.True(t, ok)
	assert.Equal(t, symbol.Stub, d.Kind)
	assert.Nil(t, d.Entry.Signature)
}

func TestGenerator_Reconcile_NamesBeforeTableAreConfirmed(t *testing.T) {
	root := t.TempDir()
	fixture(t, root, "vk_common_entrypoints.c", "runtime/vk_common_entrypoints.c")
	job := commonJob()
	job.Sources = []config.Source{
		{Kind: config.SourceNames, Names: []string{"GetDeviceQueue", "CmdPushDescriptorSet"}},
		{Kind: config.SourceTable, Path: "runtime/vk_common_entrypoints.c"},
	}
	cfg := testConfig(t, root, job)
	g, _ := newTestGenerator(t, cfg, inventory.Static(symbol.NewSet()))

	res, err := g.Reconcile(context.Background(), &cfg.Jobs[0])
	require.NoError(t, err)
	assert.Equal(t, 4, res.Surface.Len())
	assert.Equal(t, []symbol.Name{"vk_common_CmdPushDescriptorSet"}, res.Surface.Unverified)
}

func TestGenerator_Run_CommentedParameterList(t *testing.T) {
	root := t.TempDir()
	header := "VKAPI_ATTR VkResult VKAPI_CALL kk_TrimPool(VkDevice device /* see kk_ResetPool( */, uint32_t flags);\n" +
		"VKAPI_ATTR void VKAPI_CALL kk_ResetPool(VkDevice device);\n" +
		"VKAPI_ATTR void VKAPI_CALL kk_DestroyPool(VkDevice device,\n"
	require.NoError(t, os.MkdirAll(filepath.Join(root, "include"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "include/kk_entrypoints.h"), []byte(header), 0644))
	job := entrypointsJob()
	job.Forwards = nil
	cfg := testConfig(t, root, job)
	g, log := newTestGenerator(t, cfg, inventory.Static(symbol.NewSet()))

	res, err := g.Run(context.Background(), &cfg.Jobs[0])
	require.NoError(t, err)
	out := string(res.Data)

	assert.Contains(t, out, "VKAPI_ATTR VkResult VKAPI_CALL kk_TrimPool(VkDevice device, uint32_t flags)")
	assert.Contains(t, out, "VKAPI_ATTR void VKAPI_CALL kk_ResetPool(VkDevice device)")
	assert.Contains(t, out, "VKAPI_ATTR VkResult VKAPI_CALL kk_DestroyPool(void* dummy, ...)")
	assert.Equal(t, 3, res.Plan.Counts()[symbol.Stub])

	var unparsable int
	for _, w := range log.Warnings() {
		if w.Code == diag.CodeUnparsable {
			unparsable++
		}
	}
	assert.Equal(t, 1, unparsable)
}

func TestGenerator_Run_DirectorySource(t *testing.T) {
	root := t.TempDir()
	fixture(t, root, "vk_common_entrypoints.c", "runtime/a/vk_common_entrypoints.c")
	fixture(t, root, "wsi_common_entrypoints.c", "runtime/b/wsi_common_entrypoints.c")
	job := commonJob()
	job.Sources = []config.Source{{Kind: config.SourceScan, Dir: "runtime", Pattern: "vk_*.c", Required: true}}
	cfg := testConfig(t, root, job)
	g, _ := newTestGenerator(t, cfg, inventory.Static(symbol.NewSet()))

	res, err := g.Reconcile(context.Background(), &cfg.Jobs[0])
	require.NoError(t, err)
	assert.Equal(t, 3, res.Surface.Len())
}

func wsiJob() config.Job {
	return config.Job{
		Name:       "wsi",
		Output:     "src/wsi_entrypoint_forwards.c",
		Prefix:     "wsi_",
		Alternate:  config.Alternate{Prefix: "vk_common_"},
		References: []config.Reference{{Path: "include/vulkan_core.h", Prefix: "vk"}},
		Sources: []config.Source{
			{Kind: config.SourceTable, Path: "wsi/wsi_common_entrypoints.c", Required: true},
		},
	}
}

func TestGenerator_Run_ReferenceSignatures(t *testing.T) {
	root := t.TempDir()
	fixture(t, root, "wsi_common_entrypoints.c", "wsi/wsi_common_entrypoints.c")
	fixture(t, root, "vulkan_core.h", "include/vulkan_core.h")
	cfg := testConfig(t, root, wsiJob())
	g, _ := newTestGenerator(t, cfg, inventory.Static(symbol.NewSet("vk_common_AcquireNextImageKHR")))

	res, err := g.Run(context.Background(), &cfg.Jobs[0])
	require.NoError(t, err)
	out := string(res.Data)

	assert.Contains(t, out, "    extern VKAPI_ATTR VkResult VKAPI_CALL vk_common_AcquireNextImageKHR(VkDevice device, VkSwapchainKHR swapchain, uint64_t timeout, VkSemaphore semaphore, VkFence fence, uint32_t* pImageIndex);\n")
	assert.Contains(t, out, "VKAPI_ATTR VkResult VKAPI_CALL wsi_GetSwapchainImagesKHR(VkDevice device, VkSwapchainKHR swapchain, uint32_t* pSwapchainImageCount, VkImage* pSwapchainImages)")
	assert.Contains(t, out, "    (void)pSwapchainImageCount;\n")
	assert.Contains(t, out, "VKAPI_ATTR void VKAPI_CALL wsi_CmdSetFoo(void* dummy, ...)")
	assert.Equal(t, 1, res.Surface.WithoutSignature())
}

func TestGenerator_Run_DemotesForwardWithoutSignature(t *testing.T) {
	root := t.TempDir()
	fixture(t, root, "wsi_common_entrypoints.c", "wsi/wsi_common_entrypoints.c")
	cfg := testConfig(t, root, wsiJob())
	g, log := newTestGenerator(t, cfg, inventory.Static(symbol.NewSet("vk_common_AcquireNextImageKHR")))

	res, err := g.Run(context.Background(), &cfg.Jobs[0])
	require.NoError(t, err)

	d, ok := res.Plan.Lookup("wsi_AcquireNextImageKHR")
	require.True(t, ok)
	assert.Equal(t, symbol.Stub, d.Kind)
	assert.NotEmpty(t, d.Note)
	assert.Contains(t, string(res.Data), "/* forward to vk_common_AcquireNextImageKHR demoted: signature unknown */")
	require.NotEmpty(t, log.Warnings())
	assert.Equal(t, diag.CodeMissingSource, log.Warnings()[0].Code)
}

func TestGenerator_Run_DryRunWithCatalogAndReport(t *testing.T) {
	root := t.TempDir()
	fixture(t, root, "kk_entrypoints.h", "include/kk_entrypoints.h")
	cfg := testConfig(t, root, entrypointsJob())
	g, _ := newTestGenerator(t, cfg, inventory.Static(symbol.NewSet("kk_CreateInstance")))

	cat, err := catalog.NewSQLiteCatalog(filepath.Join(root, "catalog.db"))
	require.NoError(t, err)
	defer cat.Close()
	g.Catalog = cat
	g.Report = generator.NewRunReport("generate", root)
	g.DryRun = true

	res, err := g.Run(context.Background(), &cfg.Jobs[0])
	require.NoError(t, err)
	assert.False(t, res.Written)
	_, statErr := os.Stat(res.Output)
	assert.True(t, os.IsNotExist(statErr))

	run, err := cat.LoadRun(context.Background(), "entrypoints")
	require.NoError(t, err)
	assert.Equal(t, res.Digest, run.Digest)
	assert.Len(t, run.Dispositions, res.Surface.Len())
	assert.True(t, run.Inventory.Has("kk_CreateInstance"))

	g.Report.Finalize()
	require.Len(t, g.Report.Jobs, 1)
	metric := g.Report.Jobs[0]
	assert.Equal(t, 1, metric.Satisfied)
	assert.False(t, metric.Written)
	var stages []string
	for _, s := range g.Report.Stages {
		stages = append(stages, s.Stage)
	}
	assert.Equal(t, []string{"inventory", "surface", "resolve", "normalize", "emit", "catalog"}, stages)
}

func TestGenerator_Run_CatalogDrift(t *testing.T) {
	root := t.TempDir()
	fixture(t, root, "kk_entrypoints.h", "include/kk_entrypoints.h")
	cfg := testConfig(t, root, entrypointsJob())
	cat, err := catalog.NewSQLiteCatalog(filepath.Join(root, "catalog.db"))
	require.NoError(t, err)
	defer cat.Close()

	first, _ := newTestGenerator(t, cfg, inventory.Static(symbol.NewSet("kk_CreateInstance")))
	first.Catalog = cat
	res, err := first.Run(context.Background(), &cfg.Jobs[0])
	require.NoError(t, err)
	assert.Nil(t, res.Drift)

	second, log := newTestGenerator(t, cfg, inventory.Static(symbol.NewSet()))
	second.Catalog = cat
	res, err = second.Run(context.Background(), &cfg.Jobs[0])
	require.NoError(t, err)
	require.NotNil(t, res.Drift)
	require.Len(t, res.Drift.Changed, 1)
	assert.Equal(t, "kk_CreateInstance", res.Drift.Changed[0].Name)

	var regressions int
	for _, w := range log.Warnings() {
		if w.Code == diag.CodeRegression {
			regressions++
		}
	}
	assert.Equal(t, 1, regressions)
}
