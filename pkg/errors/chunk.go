package errors

import "fmt"

// ErrMalformedChunk matches every error built by MalformedChunk.
var ErrMalformedChunk = NewError(CodeMalformedChunk, "malformed chunk", CategoryChunk, SeverityError)

// maxChunkExcerpt bounds how much of an offending chunk is kept on the error.
const maxChunkExcerpt = 256

// ChunkErrorData carries the offending chunk for debugging
type ChunkErrorData struct {
	Excerpt string `json:"excerpt"`
	Length  int    `json:"length"`
}

// MalformedChunk creates an error for a chunk that could not be parsed or
// whose value could not be extracted.
func MalformedChunk(chunk, reason string, cause error) StreamError {
	message := "malformed chunk"
	if reason != "" {
		message = fmt.Sprintf("malformed chunk: %s", reason)
	}

	excerpt := chunk
	if len(excerpt) > maxChunkExcerpt {
		excerpt = excerpt[:maxChunkExcerpt]
	}

	return WrapError(
		cause,
		CodeMalformedChunk,
		message,
		CategoryChunk,
		SeverityError,
	).WithData(&ChunkErrorData{
		Excerpt: excerpt,
		Length:  len(chunk),
	})
}
