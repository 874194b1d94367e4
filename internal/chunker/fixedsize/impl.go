package fixedsize

import (
	"fmt"

	"github.com/anjor/palprime/internal/chunker"
)

type fixedSizeChunker struct {
	size int
}

func NewChunker(size int) (chunker.Chunker, error) {
	if size < 1 {
		return nil, fmt.Errorf("invalid chunk size %d", size)
	}
	return &fixedSizeChunker{size: size}, nil
}

func (c *fixedSizeChunker) Split(
	buf []byte,
	useEntireBuffer bool,
	cb chunker.SplitResultCallback,
) (err error) {

	curIdx := c.size

	for curIdx <= len(buf) {
		err = cb(chunker.Chunk{Size: c.size})
		if err != nil {
			return
		}
		curIdx += c.size
	}

	if curIdx-c.size < len(buf) && useEntireBuffer {
		err = cb(chunker.Chunk{Size: len(buf) - (curIdx - c.size), Tail: true})
	}
	return
}
