package vulkan

import (
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vkrender/gpu"
)

func TestResultMapping(t *testing.T) {
	assert.NoError(t, result(vk.Success, "noop"))

	err := result(vk.ErrorOutOfDate, "acquire")
	assert.True(t, errors.Is(err, gpu.ErrOutOfDate))
	assert.False(t, gpu.IsFatal(err))

	err = result(vk.ErrorDeviceLost, "submit")
	assert.True(t, errors.Is(err, gpu.ErrDeviceLost))
	assert.True(t, gpu.IsFatal(err))

	err = result(vk.ErrorOutOfDeviceMemory, "allocate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to allocate")
	assert.True(t, gpu.IsFatal(err))
}

func TestBufferUsage(t *testing.T) {
	got := bufferUsage(gpu.BufferUsageUniform | gpu.BufferUsageTransferDst)
	assert.Equal(t, vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit|vk.BufferUsageTransferDstBit), got)
	assert.Zero(t, bufferUsage(0))
}

func TestVertexFormat(t *testing.T) {
	assert.Equal(t, vk.FormatR32g32Sfloat, vertexFormat(gpu.VertexFloat2))
	assert.Equal(t, vk.FormatR32g32b32Sfloat, vertexFormat(gpu.VertexFloat3))
	assert.Equal(t, vk.FormatR32g32b32a32Sfloat, vertexFormat(gpu.VertexFloat4))
}

func TestSetBindingsSplitsTextureSlots(t *testing.T) {
	got := setBindings([]gpu.SlotKind{gpu.SlotUniformBuffer, gpu.SlotSampledTexture})
	require.Len(t, got, 3)

	assert.Equal(t, uint32(0), got[0].Binding)
	assert.Equal(t, vk.DescriptorTypeUniformBuffer, got[0].DescriptorType)

	assert.Equal(t, uint32(1), got[1].Binding)
	assert.Equal(t, vk.DescriptorTypeSampledImage, got[1].DescriptorType)

	assert.Equal(t, uint32(1+gpu.SamplerBindingOffset), got[2].Binding)
	assert.Equal(t, vk.DescriptorTypeSampler, got[2].DescriptorType)
}

func TestSafeStrings(t *testing.T) {
	assert.Equal(t, []string{"a\x00", "VK_KHR_swapchain\x00"}, safeStrings([]string{"a", "VK_KHR_swapchain"}))
	assert.Empty(t, safeStrings(nil))
}

func TestSemaphoreHandlesSkipsForeign(t *testing.T) {
	assert.Empty(t, semaphoreHandles([]gpu.Semaphore{nil, &semaphore{}}))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.VSync)
	assert.Equal(t, uint32(2), cfg.Images)
	assert.False(t, cfg.EnableValidation)
}
