package vkbackend

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkframe"
)

type Image struct {
	Device   *Device
	VKImage  vk.Image
	VKFormat vk.Format
	Format   vkframe.Format
	Extent   vk.Extent2D
	Samples  vk.SampleCountFlagBits

	// undefined is set until the first barrier; that barrier discards the
	// contents instead of transitioning them.
	undefined bool
}

func (i *Image) GetMemoryRequirements() vk.MemoryRequirements {
	var memRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(i.Device.VKDevice, i.VKImage, &memRequirements)
	memRequirements.Deref()
	return memRequirements
}

func (i *Image) subresourceRange() vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask: aspectMask(i.Format),
		LevelCount: 1,
		LayerCount: 1,
	}
}

func (i *Image) subresourceLayers() vk.ImageSubresourceLayers {
	return vk.ImageSubresourceLayers{
		AspectMask: aspectMask(i.Format),
		LayerCount: 1,
	}
}

// transition builds the barrier that moves i from before to after along with
// the stages it synchronizes.
func (i *Image) transition(before, after vkframe.ResourceState) (vk.ImageMemoryBarrier, vk.PipelineStageFlagBits, vk.PipelineStageFlagBits) {
	src, dst := syncFor(before), syncFor(after)
	if i.undefined {
		src = stateSync{vk.ImageLayoutUndefined, 0, vk.PipelineStageTopOfPipeBit}
		if before == vkframe.StatePresent {
			src.stage = vk.PipelineStageColorAttachmentOutputBit
		}
	}
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(src.access),
		DstAccessMask:       vk.AccessFlags(dst.access),
		OldLayout:           src.layout,
		NewLayout:           dst.layout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               i.VKImage,
		SubresourceRange:    i.subresourceRange(),
	}
	return barrier, src.stage, dst.stage
}

func (d *Device) CreateImage(extent vk.Extent2D, format vk.Format, samples vk.SampleCountFlagBits, usage vk.ImageUsageFlags) (*Image, error) {
	imageInfo := vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Format:        format,
		Extent:        vk.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       samples,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	var image vk.Image
	if err := vkErr("create image", vk.CreateImage(d.VKDevice, &imageInfo, nil, &image)); err != nil {
		return nil, err
	}
	return &Image{
		Device:    d,
		VKImage:   image,
		VKFormat:  format,
		Extent:    extent,
		Samples:   samples,
		undefined: true,
	}, nil
}

// Texture is a device-local image created through vkframe.Device.CreateTexture.
type Texture struct {
	Image
	Memory *DeviceMemory
}

func textureUsage(desc vkframe.TextureDesc) vk.ImageUsageFlagBits {
	var usage vk.ImageUsageFlagBits
	if desc.Usage&vkframe.UsageRenderTarget != 0 {
		usage |= vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit
	}
	if desc.Usage&vkframe.UsageDepthStencil != 0 {
		usage |= vk.ImageUsageDepthStencilAttachmentBit
	}
	if desc.Usage&vkframe.UsageShaderResource != 0 {
		usage |= vk.ImageUsageSampledBit
	}
	return usage
}

// CreateTexture creates a 2D texture and transitions it into desc.Initial.
// Clear values are supplied per render pass, so the ones in desc are only
// hints.
func (d *Device) CreateTexture(desc vkframe.TextureDesc) (vkframe.Resource, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("%w: texture size %dx%d", vkframe.ErrInvalidArgument, desc.Width, desc.Height)
	}
	samples, ok := sampleCountBit(desc.SampleCount)
	if !ok {
		return nil, fmt.Errorf("%w: %d samples", vkframe.ErrInvalidArgument, desc.SampleCount)
	}
	format := d.format(desc.Format)
	if format == vk.FormatUndefined {
		return nil, fmt.Errorf("%w: texture format %d", vkframe.ErrInvalidArgument, desc.Format)
	}

	extent := vk.Extent2D{Width: uint32(desc.Width), Height: uint32(desc.Height)}
	img, err := d.CreateImage(extent, format, samples, vk.ImageUsageFlags(textureUsage(desc)))
	if err != nil {
		return nil, err
	}
	img.Format = desc.Format

	mr := img.GetMemoryRequirements()
	mem, err := d.Allocate(int(mr.Size), mr.MemoryTypeBits, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		img.Destroy()
		return nil, err
	}
	if err := vkErr("bind image memory", vk.BindImageMemory(d.VKDevice, img.VKImage, mem.VKDeviceMemory, 0)); err != nil {
		mem.Destroy()
		img.Destroy()
		return nil, err
	}
	t := &Texture{Image: *img, Memory: mem}

	err = d.submitOnce(func(cb vk.CommandBuffer) {
		barrier, src, dst := t.transition(vkframe.StateCommon, desc.Initial)
		vk.CmdPipelineBarrier(cb, vk.PipelineStageFlags(src), vk.PipelineStageFlags(dst), 0,
			0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	})
	if err != nil {
		t.Release()
		return nil, err
	}
	t.undefined = false
	return t, nil
}

func (t *Texture) Release() {
	if t.VKImage == vk.NullImage {
		return
	}
	t.Destroy()
	t.Memory.Destroy()
	t.VKImage = vk.NullImage
}

func (i *Image) Destroy() {
	vk.DestroyImage(i.Device.VKDevice, i.VKImage, nil)
}

// imageOf returns the image behind a texture or swap chain buffer.
func imageOf(res vkframe.Resource) (*Image, error) {
	switch r := res.(type) {
	case *Texture:
		return &r.Image, nil
	case *swapImage:
		return &r.Image, nil
	}
	return nil, fmt.Errorf("%w: %T is not an image", vkframe.ErrInvalidArgument, res)
}
