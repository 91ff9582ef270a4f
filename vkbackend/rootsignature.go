package vkbackend

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkframe"
)

// setsPerSlot bounds the descriptor sets a root signature caches per slot.
const setsPerSlot = 256

// RootSignature maps each root parameter to one descriptor set: slot N is set N.
// A constant buffer slot is a dynamic uniform buffer at binding 0 whose offset
// is supplied when it is bound. A descriptor table has one binding per
// descriptor, numbered from 0 in range order. Static samplers are immutable
// samplers in one extra set after the parameters, at bindings in the order
// they were added.
type RootSignature struct {
	Device *Device
	Layout *PipelineLayout

	desc       vkframe.RootSignatureDesc
	setLayouts []*DescriptorSetLayout
	samplers   []vk.Sampler
	samplerSet *DescriptorSet
	pool       *DescriptorPool

	cbvSets   map[cbvKey]*DescriptorSet
	tableSets map[tableKey]*DescriptorSet
}

type cbvKey struct {
	slot   int
	buffer vk.Buffer
	size   uint64
}

type tableKey struct {
	slot  int
	heap  *DescriptorHeap
	index int
}

var _ vkframe.RootSignature = (*RootSignature)(nil)

// parameterBindings returns the set layout bindings of one root parameter.
func parameterBindings(p vkframe.RootParameter) ([]vk.DescriptorSetLayoutBinding, error) {
	stages := shaderStages(p.Visibility)
	if p.Kind == vkframe.RootConstantBufferView {
		return []vk.DescriptorSetLayoutBinding{{
			Binding:         0,
			DescriptorType:  vk.DescriptorTypeUniformBufferDynamic,
			DescriptorCount: 1,
			StageFlags:      stages,
		}}, nil
	}

	var out []vk.DescriptorSetLayoutBinding
	for _, r := range p.Ranges {
		if r.Kind == vkframe.RangeSampler {
			return nil, fmt.Errorf("%w: sampler ranges in descriptor tables, use static samplers", vkframe.ErrNotImplemented)
		}
		for i := 0; i < r.Count; i++ {
			out = append(out, vk.DescriptorSetLayoutBinding{
				Binding:         uint32(len(out)),
				DescriptorType:  descriptorType(r.Kind),
				DescriptorCount: 1,
				StageFlags:      stages,
			})
		}
	}
	return out, nil
}

func samplerCreateInfo(s vkframe.StaticSampler) vk.SamplerCreateInfo {
	filter, mipmap := filterModes(s.Filter)
	address := addressMode(s.Address)
	info := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    filter,
		MinFilter:    filter,
		MipmapMode:   mipmap,
		AddressModeU: address,
		AddressModeV: address,
		AddressModeW: address,
		MaxLod:       1000,
		BorderColor:  vk.BorderColorFloatOpaqueWhite,
	}
	if s.Filter == vkframe.FilterAnisotropic && s.MaxAniso > 1 {
		info.AnisotropyEnable = vk.True
		info.MaxAnisotropy = float32(s.MaxAniso)
	}
	if s.Filter == vkframe.FilterComparisonLinear {
		info.CompareEnable = vk.True
		info.CompareOp = compareOp(s.Comparison)
	}
	return info
}

func (d *Device) CreateRootSignature(desc vkframe.RootSignatureDesc) (vkframe.RootSignature, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	rs := &RootSignature{
		Device:    d,
		desc:      desc,
		pool:      d.NewDescriptorPool(),
		cbvSets:   make(map[cbvKey]*DescriptorSet),
		tableSets: make(map[tableKey]*DescriptorSet),
	}
	if err := rs.init(); err != nil {
		rs.Release()
		return nil, err
	}
	d.rootSignatures[rs] = struct{}{}
	return rs, nil
}

func (rs *RootSignature) init() error {
	d := rs.Device
	for _, p := range rs.desc.Parameters {
		bindings, err := parameterBindings(p)
		if err != nil {
			return err
		}
		layout, err := d.CreateDescriptorSetLayout(d.NewDescriptorSetLayout(bindings...))
		if err != nil {
			return err
		}
		rs.setLayouts = append(rs.setLayouts, layout)
		for _, b := range bindings {
			rs.pool.AddPoolSize(b.DescriptorType, setsPerSlot)
		}
	}
	maxSets := setsPerSlot * len(rs.desc.Parameters)

	var samplerLayout *DescriptorSetLayout
	if len(rs.desc.StaticSamplers) > 0 {
		samplerLayout = d.NewDescriptorSetLayout()
		for i, s := range rs.desc.StaticSamplers {
			info := samplerCreateInfo(s)
			var sampler vk.Sampler
			if err := vkErr("create sampler", vk.CreateSampler(d.VKDevice, &info, nil, &sampler)); err != nil {
				return err
			}
			rs.samplers = append(rs.samplers, sampler)
			samplerLayout.AddBinding(vk.DescriptorSetLayoutBinding{
				Binding:            uint32(i),
				DescriptorType:     vk.DescriptorTypeSampler,
				DescriptorCount:    1,
				StageFlags:         shaderStages(s.Visibility),
				PImmutableSamplers: []vk.Sampler{sampler},
			})
		}
		if _, err := d.CreateDescriptorSetLayout(samplerLayout); err != nil {
			return err
		}
		rs.setLayouts = append(rs.setLayouts, samplerLayout)
		rs.pool.AddPoolSize(vk.DescriptorTypeSampler, len(rs.samplers))
		maxSets++
	}

	if maxSets > 0 {
		if _, err := d.CreateDescriptorPool(rs.pool, maxSets); err != nil {
			return err
		}
	}
	if samplerLayout != nil {
		set, err := rs.pool.Allocate(samplerLayout)
		if err != nil {
			return err
		}
		rs.samplerSet = set
	}

	layout, err := d.CreatePipelineLayout(rs.setLayouts...)
	if err != nil {
		return err
	}
	rs.Layout = layout
	return nil
}

func (rs *RootSignature) Desc() vkframe.RootSignatureDesc { return rs.desc }

func (rs *RootSignature) checkSlot(slot int, kind vkframe.RootParameterKind) error {
	if slot < 0 || slot >= len(rs.desc.Parameters) {
		return fmt.Errorf("%w: root slot %d out of range", vkframe.ErrInvalidArgument, slot)
	}
	if rs.desc.Parameters[slot].Kind != kind {
		return fmt.Errorf("%w: root slot %d has the wrong kind", vkframe.ErrInvalidArgument, slot)
	}
	return nil
}

// cbvSet returns the descriptor set for a constant buffer slot and the dynamic
// offset that selects view within it.
func (rs *RootSignature) cbvSet(slot int, view vkframe.UploadView) (*DescriptorSet, uint32, error) {
	if err := rs.checkSlot(slot, vkframe.RootConstantBufferView); err != nil {
		return nil, 0, err
	}
	buf, err := bufferOf(view.Block)
	if err != nil {
		return nil, 0, err
	}
	key := cbvKey{slot: slot, buffer: buf, size: view.Size}
	set, ok := rs.cbvSets[key]
	if !ok {
		set, err = rs.pool.Allocate(rs.setLayouts[slot])
		if err != nil {
			return nil, 0, err
		}
		set.AddBuffer(0, vk.DescriptorTypeUniformBufferDynamic, buf, 0, view.Size)
		set.Write()
		rs.cbvSets[key] = set
	}
	return set, uint32(view.Offset), nil
}

// tableSet returns the descriptor set holding the descriptors of a table slot
// starting at handle.
func (rs *RootSignature) tableSet(slot int, handle vkframe.DescriptorHandle) (*DescriptorSet, error) {
	if err := rs.checkSlot(slot, vkframe.RootDescriptorTable); err != nil {
		return nil, err
	}
	heap, ok := handle.Heap.(*DescriptorHeap)
	if !ok {
		return nil, fmt.Errorf("%w: descriptor heap %T", vkframe.ErrInvalidArgument, handle.Heap)
	}
	key := tableKey{slot: slot, heap: heap, index: handle.Index}
	if set, ok := rs.tableSets[key]; ok {
		return set, nil
	}

	param := rs.desc.Parameters[slot]
	if handle.Index < 0 || handle.Index+param.DescriptorCount() > heap.Len() {
		return nil, fmt.Errorf("%w: table at %d overruns heap of %d", vkframe.ErrInvalidArgument, handle.Index, heap.Len())
	}
	set, err := rs.pool.Allocate(rs.setLayouts[slot])
	if err != nil {
		return nil, err
	}
	binding := 0
	for _, r := range param.Ranges {
		for i := 0; i < r.Count; i++ {
			e := heap.entries[handle.Index+binding]
			switch r.Kind {
			case vkframe.RangeConstantBuffer:
				if e.buffer == vk.NullBuffer {
					rs.pool.Free(set)
					return nil, fmt.Errorf("%w: descriptor %d holds no constant buffer view", vkframe.ErrInvalidArgument, handle.Index+binding)
				}
				set.AddBuffer(binding, vk.DescriptorTypeUniformBuffer, e.buffer, e.offset, e.size)
			case vkframe.RangeUnorderedAccess, vkframe.RangeShaderResource:
				if e.view == nil {
					rs.pool.Free(set)
					return nil, fmt.Errorf("%w: descriptor %d holds no image view", vkframe.ErrInvalidArgument, handle.Index+binding)
				}
				layout := vk.ImageLayoutShaderReadOnlyOptimal
				if r.Kind == vkframe.RangeUnorderedAccess {
					layout = vk.ImageLayoutGeneral
				}
				set.AddImage(binding, descriptorType(r.Kind), e.view.VKImageView, layout)
			}
			binding++
		}
	}
	set.Write()
	rs.tableSets[key] = set
	return set, nil
}

func (rs *RootSignature) forgetBuffer(buf vk.Buffer) {
	for key, set := range rs.cbvSets {
		if key.buffer == buf {
			rs.pool.Free(set)
			delete(rs.cbvSets, key)
		}
	}
	for key, set := range rs.tableSets {
		if key.heap.references(buf) {
			rs.pool.Free(set)
			delete(rs.tableSets, key)
		}
	}
}

func (rs *RootSignature) forgetHeap(h *DescriptorHeap) {
	for key, set := range rs.tableSets {
		if key.heap == h {
			rs.pool.Free(set)
			delete(rs.tableSets, key)
		}
	}
}

func (rs *RootSignature) Release() {
	d := rs.Device
	delete(d.rootSignatures, rs)
	if rs.Layout != nil {
		rs.Layout.Destroy()
		rs.Layout = nil
	}
	if rs.pool.VKDescriptorPool != vk.NullDescriptorPool {
		rs.pool.Destroy()
		rs.pool.VKDescriptorPool = vk.NullDescriptorPool
	}
	for _, l := range rs.setLayouts {
		l.Destroy()
	}
	for _, s := range rs.samplers {
		vk.DestroySampler(d.VKDevice, s, nil)
	}
	rs.setLayouts, rs.samplers, rs.samplerSet = nil, nil, nil
	rs.cbvSets, rs.tableSets = map[cbvKey]*DescriptorSet{}, map[tableKey]*DescriptorSet{}
}
