package vkframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineTableBuild(t *testing.T) {
	dev := newFakeDevice()
	rs := &fakeRootSig{}
	table, err := NewPipelineTableBuilder().
		Add(NormalPass(), PipelineStateDesc{RootSignature: rs}).
		Add(MirrorStencilPass(1), PipelineStateDesc{RootSignature: rs}).
		Add(ShadowPass(), PipelineStateDesc{RootSignature: rs}).
		Build(dev)
	require.NoError(t, err)

	assert.Equal(t, 3, table.Len())
	e, ok := table.Get(MirrorStencilPass(1))
	require.True(t, ok)
	assert.Same(t, dev.pipelines[1], e.State)
	assert.Same(t, rs, e.RootSignature)

	_, ok = table.Get(MirrorStencilPass(2))
	assert.False(t, ok)
	assert.Panics(t, func() { table.MustGet(MirrorMaskedPass(1)) })
	assert.Equal(t, []PassID{NormalPass(), ShadowPass(), MirrorStencilPass(1)}, table.IDs())
}

func TestPipelineTableBuilderErrors(t *testing.T) {
	rs := &fakeRootSig{}
	_, err := NewPipelineTableBuilder().
		Add(NormalPass(), PipelineStateDesc{RootSignature: rs}).
		Add(NormalPass(), PipelineStateDesc{RootSignature: rs}).
		Build(newFakeDevice())
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewPipelineTableBuilder().Add(ShadowPass(), PipelineStateDesc{}).Build(newFakeDevice())
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPipelineTableBuildFailureReleases(t *testing.T) {
	dev := newFakeDevice()
	dev.pipelineFail = 3
	rs := &fakeRootSig{}
	b := NewPipelineTableBuilder()
	for r := 0; r < 3; r++ {
		b.Add(MirrorCompositePass(r), PipelineStateDesc{RootSignature: rs})
	}
	_, err := b.Build(dev)
	assert.ErrorIs(t, err, ErrDeviceFailure)
	require.Len(t, dev.pipelines, 2)
	for _, p := range dev.pipelines {
		assert.True(t, p.released)
	}
}

func TestPipelineTableBind(t *testing.T) {
	dev := newFakeDevice()
	rs := &fakeRootSig{}
	table, err := NewPipelineTableBuilder().Add(NormalPass(), PipelineStateDesc{RootSignature: rs}).Build(dev)
	require.NoError(t, err)

	cmd := &fakeCmdList{}
	table.Bind(cmd, NormalPass())
	assert.Equal(t, []string{"pso pso0"}, cmd.ops)

	table.Release()
	assert.True(t, dev.pipelines[0].released)
	assert.False(t, rs.released, "root signatures belong to the caller")
}

func TestPassIDString(t *testing.T) {
	assert.Equal(t, "Shadow", ShadowPass().String())
	assert.Equal(t, "MirrorMasked(3)", MirrorMaskedPass(3).String())
}
