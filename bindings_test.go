package vkframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootSignatureDescSlots(t *testing.T) {
	var d RootSignatureDesc
	assert.Equal(t, 0, d.AddConstantBufferView(0))
	assert.Equal(t, 1, d.AddConstantBufferView(1))
	slot := d.AddDescriptorTable(
		DescriptorRange{Kind: RangeShaderResource, Count: 4},
		DescriptorRange{Kind: RangeConstantBuffer, Count: 1, BaseRegister: 2},
	)
	assert.Equal(t, 2, slot)
	d.AddStaticSampler(StaticSampler{Register: 0})

	assert.NoError(t, d.Validate())
	assert.Equal(t, 5, d.Parameters[slot].DescriptorCount())
}

func TestRootSignatureDescValidate(t *testing.T) {
	tests := []struct {
		name  string
		build func(d *RootSignatureDesc)
	}{
		{"duplicate cbv", func(d *RootSignatureDesc) {
			d.AddConstantBufferView(0)
			d.AddConstantBufferView(0)
		}},
		{"table overlaps cbv", func(d *RootSignatureDesc) {
			d.AddConstantBufferView(1)
			d.AddDescriptorTable(DescriptorRange{Kind: RangeConstantBuffer, Count: 2})
		}},
		{"empty table", func(d *RootSignatureDesc) {
			d.AddDescriptorTable()
		}},
		{"zero range", func(d *RootSignatureDesc) {
			d.AddDescriptorTable(DescriptorRange{Kind: RangeShaderResource})
		}},
		{"duplicate sampler", func(d *RootSignatureDesc) {
			d.AddStaticSampler(StaticSampler{Register: 1})
			d.AddStaticSampler(StaticSampler{Register: 1})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d RootSignatureDesc
			tt.build(&d)
			assert.ErrorIs(t, d.Validate(), ErrInvalidArgument)
		})
	}
}

func TestRootSignatureDescSeparateSpaces(t *testing.T) {
	d := RootSignatureDesc{Parameters: []RootParameter{
		{Kind: RootConstantBufferView, Register: 0},
		{Kind: RootConstantBufferView, Register: 0, Space: 1},
	}}
	assert.NoError(t, d.Validate())
}
