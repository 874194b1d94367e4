// Package chunker cuts ring buffer regions into the blocks fed to the scanner.
package chunker

type Chunker interface {
	// Split reports consecutive chunks from the start of rawDataBuffer. A
	// trailing remainder shorter than a full chunk is only reported when
	// useEntireBuffer is set, as no more data is coming.
	Split(
		rawDataBuffer []byte,
		useEntireBuffer bool,
		resultCallback SplitResultCallback,
	) error
}

type SplitResultCallback func(
	singleChunkingResult Chunk,
) error

type Chunk struct {
	Size int
	// Set on the short remainder of the final buffer
	Tail bool
}
