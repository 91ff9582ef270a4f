package vkbackend

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkframe"
)

var end = "\x00"
var endChar byte = '\x00'

// vkErr converts a Vulkan result into an error naming the failed call.
func vkErr(op string, res vk.Result) error {
	if err := vk.Error(res); err != nil {
		if res == vk.ErrorDeviceLost {
			return fmt.Errorf("%w: %s: %w", vkframe.ErrDeviceLost, op, err)
		}
		return fmt.Errorf("vkbackend: %s: %w", op, err)
	}
	return nil
}

// toBytes views length bytes starting at ptr as a slice.
func toBytes(ptr unsafe.Pointer, length int) []byte {
	return unsafe.Slice((*byte)(ptr), length)
}

// toWords reinterprets SPIR-V bytes as 32-bit little-endian words.
func toWords(code []byte) []uint32 {
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = uint32(code[i*4]) |
			uint32(code[i*4+1])<<8 |
			uint32(code[i*4+2])<<16 |
			uint32(code[i*4+3])<<24
	}
	return words
}

func safeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = safeString(list[i])
	}
	return out
}

func vkBool(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}
