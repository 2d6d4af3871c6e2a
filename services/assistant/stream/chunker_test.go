// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunks_ReassemblesExactly(t *testing.T) {
	texts := []string{
		"short",
		"Done, I was able to send email to john@example.com with subject hi.",
		strings.Repeat("a long sentence with several words in it ", 20),
		"no-spaces-" + strings.Repeat("x", 200),
		"line one\nline two\nline three",
	}
	for _, text := range texts {
		chunks := Chunks(text, 16)
		assert.Equal(t, text, strings.Join(chunks, ""), "chunks must concatenate back to the input")
	}
}

func TestChunks_RespectsSizeLimit(t *testing.T) {
	text := strings.Repeat("word ", 50)
	for _, chunk := range Chunks(text, 16) {
		assert.LessOrEqual(t, len([]rune(chunk)), 16)
		assert.NotEmpty(t, chunk)
	}
}

func TestChunks_PrefersWordBoundaries(t *testing.T) {
	chunks := Chunks("alpha beta gamma delta", 12)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, "alpha beta ", chunks[0])
}

func TestChunks_RuneSafe(t *testing.T) {
	text := strings.Repeat("héllo wörld ", 10)
	chunks := Chunks(text, 7)
	assert.Equal(t, text, strings.Join(chunks, ""))
	for _, chunk := range chunks {
		assert.True(t, strings.ToValidUTF8(chunk, "?") == chunk, "chunk %q split inside a rune", chunk)
	}
}

func TestChunks_EmptyAndDefaults(t *testing.T) {
	assert.Nil(t, Chunks("", 16))

	// Non-positive size falls back to the default.
	chunks := Chunks(strings.Repeat("x", DefaultChunkSize+1), 0)
	assert.Len(t, chunks, 2)
}

func TestChunks_ShortTextIsOneChunk(t *testing.T) {
	chunks := Chunks("hello", 64)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello", chunks[0])
}
