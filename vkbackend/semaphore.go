package vkbackend

import (
	vk "github.com/vulkan-go/vulkan"
)

// VKCreateSemaphore creates a native vulkan semaphore object
func (d *Device) VKCreateSemaphore() (vk.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var sema vk.Semaphore
	err := vkErr("create semaphore", vk.CreateSemaphore(d.VKDevice, &semaphoreCreateInfo, nil, &sema))
	return sema, err
}

// VKCreateSemaphores creates n semaphores, destroying the ones already made if
// any creation fails.
func (d *Device) VKCreateSemaphores(n int) ([]vk.Semaphore, error) {
	sems := make([]vk.Semaphore, 0, n)
	for i := 0; i < n; i++ {
		s, err := d.VKCreateSemaphore()
		if err != nil {
			d.VKDestroySemaphores(sems)
			return nil, err
		}
		sems = append(sems, s)
	}
	return sems, nil
}

func (d *Device) VKDestroySemaphore(s vk.Semaphore) {
	vk.DestroySemaphore(d.VKDevice, s, nil)
}

func (d *Device) VKDestroySemaphores(sems []vk.Semaphore) {
	for _, s := range sems {
		d.VKDestroySemaphore(s)
	}
}
