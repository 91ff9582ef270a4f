package vkframe

import (
	"fmt"
)

type RootParameterKind int

const (
	RootConstantBufferView RootParameterKind = iota
	RootDescriptorTable
)

type DescriptorRangeKind int

const (
	RangeShaderResource DescriptorRangeKind = iota
	RangeConstantBuffer
	RangeUnorderedAccess
	RangeSampler
)

type ShaderVisibility int

const (
	VisibilityAll ShaderVisibility = iota
	VisibilityVertex
	VisibilityPixel
)

// DescriptorRange is a run of Count registers of one kind starting at BaseRegister.
type DescriptorRange struct {
	Kind         DescriptorRangeKind
	Count        int
	BaseRegister int
	Space        int
}

type RootParameter struct {
	Kind       RootParameterKind
	Register   int
	Space      int
	Ranges     []DescriptorRange
	Visibility ShaderVisibility
}

type Filter int

const (
	FilterLinear Filter = iota
	FilterPoint
	FilterAnisotropic
	FilterComparisonLinear
)

type AddressMode int

const (
	AddressWrap AddressMode = iota
	AddressClamp
	AddressBorder
	AddressMirror
)

type StaticSampler struct {
	Register   int
	Space      int
	Filter     Filter
	Address    AddressMode
	Comparison CompareFunc
	MaxAniso   int
	Visibility ShaderVisibility
}

// RootSignatureDesc declares the binding slots of a pipeline. Slot numbers are
// the order parameters were added in.
type RootSignatureDesc struct {
	Parameters     []RootParameter
	StaticSamplers []StaticSampler
}

// AddConstantBufferView adds a root constant buffer slot bound to register bN
// and returns its slot number.
func (d *RootSignatureDesc) AddConstantBufferView(register int) int {
	d.Parameters = append(d.Parameters, RootParameter{Kind: RootConstantBufferView, Register: register})
	return len(d.Parameters) - 1
}

// AddDescriptorTable adds a table slot covering ranges and returns its slot number.
func (d *RootSignatureDesc) AddDescriptorTable(ranges ...DescriptorRange) int {
	d.Parameters = append(d.Parameters, RootParameter{Kind: RootDescriptorTable, Ranges: ranges})
	return len(d.Parameters) - 1
}

func (d *RootSignatureDesc) AddStaticSampler(s StaticSampler) {
	d.StaticSamplers = append(d.StaticSamplers, s)
}

type registerKey struct {
	class byte
	space int
	reg   int
}

// Validate rejects empty tables and registers bound more than once.
func (d RootSignatureDesc) Validate() error {
	used := make(map[registerKey]int)
	claim := func(k registerKey, slot int) error {
		if prev, ok := used[k]; ok {
			return fmt.Errorf("%w: register %c%d space %d bound by slots %d and %d", ErrInvalidArgument, k.class, k.reg, k.space, prev, slot)
		}
		used[k] = slot
		return nil
	}
	for slot, p := range d.Parameters {
		switch p.Kind {
		case RootConstantBufferView:
			if p.Register < 0 {
				return fmt.Errorf("%w: slot %d register %d", ErrInvalidArgument, slot, p.Register)
			}
			if err := claim(registerKey{'b', p.Space, p.Register}, slot); err != nil {
				return err
			}
		case RootDescriptorTable:
			if len(p.Ranges) == 0 {
				return fmt.Errorf("%w: slot %d has an empty descriptor table", ErrInvalidArgument, slot)
			}
			for _, r := range p.Ranges {
				if r.Count < 1 || r.BaseRegister < 0 {
					return fmt.Errorf("%w: slot %d range of %d at %d", ErrInvalidArgument, slot, r.Count, r.BaseRegister)
				}
				for i := 0; i < r.Count; i++ {
					if err := claim(registerKey{r.Kind.class(), r.Space, r.BaseRegister + i}, slot); err != nil {
						return err
					}
				}
			}
		default:
			return fmt.Errorf("%w: slot %d kind %d", ErrInvalidArgument, slot, p.Kind)
		}
	}
	for _, s := range d.StaticSamplers {
		if err := claim(registerKey{'s', s.Space, s.Register}, -1); err != nil {
			return err
		}
	}
	return nil
}

// DescriptorCount is the number of descriptors a table slot spans.
func (p RootParameter) DescriptorCount() int {
	n := 0
	for _, r := range p.Ranges {
		n += r.Count
	}
	return n
}

func (k DescriptorRangeKind) class() byte {
	switch k {
	case RangeConstantBuffer:
		return 'b'
	case RangeUnorderedAccess:
		return 'u'
	case RangeSampler:
		return 's'
	}
	return 't'
}
