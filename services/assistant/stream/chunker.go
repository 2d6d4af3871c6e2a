// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

// DefaultChunkSize is the chunk length, in runes, used when no size is
// configured.
const DefaultChunkSize = 64

// Chunks splits text into delivery-sized pieces.
//
// Description:
//
//	Splits text into chunks of at most size runes, preferring to cut
//	after whitespace so words stay intact. Concatenating the returned
//	chunks reproduces text exactly. Chunk boundaries carry no meaning;
//	clients must not attach semantics to where one chunk ends and the
//	next begins.
//
// Inputs:
//
//	text - The full reply text. Empty text yields nil.
//	size - Maximum chunk length in runes. Non-positive falls back to
//	       DefaultChunkSize.
//
// Outputs:
//
//	[]string - The chunks, in order.
func Chunks(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}

	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); {
		end := start + size
		if end >= len(runes) {
			out = append(out, string(runes[start:]))
			break
		}

		// Prefer cutting just after the last whitespace in the window.
		cut := end
		for i := end; i > start; i-- {
			if runes[i-1] == ' ' || runes[i-1] == '\n' || runes[i-1] == '\t' {
				cut = i
				break
			}
		}
		out = append(out, string(runes[start:cut]))
		start = cut
	}
	return out
}
