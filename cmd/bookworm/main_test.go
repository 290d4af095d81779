package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "sk-abc...wxyz", maskKey("sk-abcdefghijklmnopqrstuvwxyz"))
	assert.Equal(t, "***", maskKey("short"))
	assert.Equal(t, "***", maskKey("abcdefghij"))
	assert.Equal(t, "abcdef...hijk", maskKey("abcdefghijk"))
}
