package vkbackend

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkframe"
)

// QueryHeap is an occlusion query pool. It implements vkframe.QueryHeap.
type QueryHeap struct {
	Device      *Device
	VKQueryPool vk.QueryPool

	count    int
	precise  bool
	released bool
}

var _ vkframe.QueryHeap = (*QueryHeap)(nil)

// CreateQueryHeap creates a pool of occlusion queries. Counting queries are
// precise when the device supports it; binary ones only report zero or not.
// The pool is reset once here; ResolveQueryData resets the queries it reads.
func (d *Device) CreateQueryHeap(kind vkframe.QueryKind, count int) (vkframe.QueryHeap, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: query heap of %d queries", vkframe.ErrInvalidArgument, count)
	}
	createInfo := vk.QueryPoolCreateInfo{
		SType:      vk.StructureTypeQueryPoolCreateInfo,
		QueryType:  vk.QueryTypeOcclusion,
		QueryCount: uint32(count),
	}
	var pool vk.QueryPool
	if err := vkErr("create query pool", vk.CreateQueryPool(d.VKDevice, &createInfo, nil, &pool)); err != nil {
		return nil, err
	}
	features := d.PhysicalDevice.VKPhysicalDeviceFeatures()
	q := &QueryHeap{
		Device:      d,
		VKQueryPool: pool,
		count:       count,
		precise:     kind == vkframe.QueryOcclusion && features.OcclusionQueryPrecise == vk.True,
	}

	err := d.submitOnce(func(cb vk.CommandBuffer) {
		vk.CmdResetQueryPool(cb, pool, 0, uint32(count))
	})
	if err != nil {
		q.Release()
		return nil, err
	}
	return q, nil
}

func (q *QueryHeap) Len() int { return q.count }

func (q *QueryHeap) controlFlags() vk.QueryControlFlags {
	if q.precise {
		return vk.QueryControlFlags(vk.QueryControlPreciseBit)
	}
	return 0
}

func (q *QueryHeap) Release() {
	if q.released {
		return
	}
	vk.DestroyQueryPool(q.Device.VKDevice, q.VKQueryPool, nil)
	q.released = true
}
