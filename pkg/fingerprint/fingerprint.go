// Package fingerprint computes blake2b tree digests of revision
// content: leaves are hashed in parallel, then a root digest covers
// the leaf digests. A blob's digest depends only on its bytes and the
// leaf size.
package fingerprint

import (
	"bytes"
	"io"
	"runtime"
	"sync"

	units "github.com/docker/go-units"
	blake2b "github.com/minio/blake2b-simd"
)

type chunkInput struct {
	part       int
	partBuffer []byte
	lastChunk  bool
	leafSize   uint32
}

type chunkOutput struct {
	digest []byte
	part   int
	err    error
}

type Option func(*Maker)

// LeafSize sets the chunk size hashed as one leaf
func LeafSize(sz int64) Option {
	return func(m *Maker) {
		m.leafSize = uint32(sz)
	}
}

// NumberOfWorkers sets how many leaves are hashed concurrently
func NumberOfWorkers(no int) Option {
	return func(m *Maker) {
		m.numberOfWorkers = no
	}
}

// Size sets the digest size in bytes, at most 64
func Size(sz uint8) Option {
	return func(m *Maker) {
		m.size = sz
	}
}

func New(opts ...Option) *Maker {
	m := &Maker{
		leafSize:        uint32(5 * units.MB),
		numberOfWorkers: runtime.NumCPU(),
		size:            64,
	}

	for _, apply := range opts {
		apply(m)
	}
	return m
}

// Maker computes digests with a fixed leaf size and worker count. A
// Maker is safe for concurrent use.
type Maker struct {
	size            uint8
	leafSize        uint32
	numberOfWorkers int
}

// Bytes digests an in-memory blob
func (m *Maker) Bytes(content []byte) ([]byte, error) {
	return m.Process(bytes.NewReader(content), int64(len(content)))
}

// Process digests size bytes read from rdr
func (m *Maker) Process(rdr io.Reader, size int64) (digest []byte, err error) {
	var wg sync.WaitGroup
	chunks := make(chan chunkInput)
	results := make(chan chunkOutput)

	for i := 0; i < m.numberOfWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.processChunk(chunks, results)
		}()
	}

	var readErr error
	go func() {
		defer close(chunks)
		for part, totalSize := 0, int64(0); ; part++ {
			partBuffer := make([]byte, m.leafSize)
			n, e := rdr.Read(partBuffer)
			if n == 0 && e != nil {
				if e != io.EOF {
					readErr = e
				}
				return
			}
			partBuffer = partBuffer[:n]

			totalSize += int64(n)
			lastChunk := uint32(n) < m.leafSize || uint32(n) == m.leafSize && totalSize == size

			chunks <- chunkInput{part: part, partBuffer: partBuffer, lastChunk: lastChunk, leafSize: m.leafSize}

			if lastChunk {
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// collect leaf digests by chunk number: the number of chunks is
	// unknown upfront for streamed input
	digestHash := make(map[int][]byte)
	for r := range results {
		if r.err != nil && err == nil {
			err = r.err
		}
		digestHash[r.part] = r.digest
	}
	if readErr != nil {
		return nil, readErr
	}
	if err != nil {
		return nil, err
	}

	sz := int(m.size)
	b := make([]byte, len(digestHash)*sz)
	for index, val := range digestHash {
		offset := sz * index
		copy(b[offset:offset+sz], val)
	}

	rootBlake, err := blake2b.New(&blake2b.Config{
		Size: blake2b.Size,
		Tree: &blake2b.Tree{
			Fanout:        0,
			MaxDepth:      2,
			LeafSize:      m.leafSize,
			NodeOffset:    0,
			NodeDepth:     1,
			InnerHashSize: m.size,
			IsLastNode:    true,
		},
	})
	if err != nil {
		return nil, err
	}

	rootBlake.Reset()
	if _, err = io.Copy(rootBlake, bytes.NewBuffer(b)); err != nil {
		return nil, err
	}
	return rootBlake.Sum(nil), nil
}

// processChunk hashes leaves until the input channel closes
func (m *Maker) processChunk(rx <-chan chunkInput, tx chan<- chunkOutput) {
	for c := range rx {
		blake, err := blake2b.New(&blake2b.Config{
			Size: blake2b.Size,
			Tree: &blake2b.Tree{
				Fanout:        0,
				MaxDepth:      2,
				LeafSize:      c.leafSize,
				NodeOffset:    uint64(c.part),
				NodeDepth:     0,
				InnerHashSize: m.size,
				IsLastNode:    c.lastChunk,
			},
		})
		if err != nil {
			tx <- chunkOutput{part: c.part, err: err}
			continue
		}

		blake.Reset()
		if _, err = io.Copy(blake, bytes.NewBuffer(c.partBuffer)); err != nil {
			tx <- chunkOutput{part: c.part, err: err}
			continue
		}
		tx <- chunkOutput{digest: blake.Sum(nil), part: c.part}
	}
}
