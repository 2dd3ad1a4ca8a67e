package terminal

import "strings"

// UpdateTail appends chunk to tail and keeps only the text after the last
// newline of the combined output.
func UpdateTail(tail, chunk string) string {
	if i := strings.LastIndexByte(chunk, '\n'); i >= 0 {
		return chunk[i+1:]
	}
	return tail + chunk
}

// TailOf returns the text after the last newline of output.
func TailOf(output string) string {
	return output[strings.LastIndexByte(output, '\n')+1:]
}
