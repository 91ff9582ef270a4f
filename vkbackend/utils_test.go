package vkbackend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	vk "github.com/vulkan-go/vulkan"
)

func TestToWords(t *testing.T) {
	words := toWords([]byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00, 0xff})
	assert.Equal(t, []uint32{0x07230203, 0x00010000}, words)
	assert.Empty(t, toWords(nil))
}

func TestSafeString(t *testing.T) {
	assert.Equal(t, "\x00", safeString(""))
	assert.Equal(t, "main\x00", safeString("main"))
	assert.Equal(t, "main\x00", safeString("main\x00"))
	assert.Equal(t, []string{"a\x00", "b\x00"}, safeStrings([]string{"a", "b\x00"}))
}

func TestVKBool(t *testing.T) {
	assert.Equal(t, vk.Bool32(vk.True), vkBool(true))
	assert.Equal(t, vk.Bool32(vk.False), vkBool(false))
}
