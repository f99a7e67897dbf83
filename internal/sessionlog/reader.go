package sessionlog

import (
	"bufio"
	stderrors "errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/grovetools/pgpulse/errors"
	"github.com/grovetools/pgpulse/pkg/snapshot"
)

var (
	errZeroLength = stderrors.New("zero-length frame")
	errOversized  = stderrors.New("frame length exceeds limit")
)

// FrameRef locates one readable frame in a log.
type FrameRef struct {
	Offset     int64
	Length     int64
	Sequence   uint64
	CapturedAt time.Time
	// Mono is the frame's offset from the session start.
	Mono time.Duration
}

// Gap is a complete frame that failed to decode and was skipped.
type Gap struct {
	Offset int64
	Err    error
}

// Index is the result of a forward scan over a log.
type Index struct {
	Frames []FrameRef
	Gaps   []Gap
	// GoodOffset is the end of the last complete frame.
	GoodOffset int64
	// EndedEarly is set when the log ends in an incomplete frame.
	EndedEarly bool
	// Truncated carries REPLAY_TRUNCATED when EndedEarly is set.
	Truncated error
}

// Reader provides read-only random access to the frames of a closed log.
// ReadFrame is safe for concurrent use.
type Reader struct {
	path  string
	file  *os.File
	index Index

	mu     sync.Mutex
	closed bool
}

// Open opens path read-only and scans it from the start.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.SessionOpen(path, err)
	}
	idx, err := Scan(f)
	if err != nil {
		f.Close()
		return nil, errors.SessionOpen(path, err)
	}
	return &Reader{path: path, file: f, index: idx}, nil
}

// Scan walks every frame from the start of r, decoding each to learn its
// sequence and capture time. A complete frame that fails to decode becomes a
// Gap; a trailing partial frame sets EndedEarly. Only I/O errors fail the scan.
func Scan(r io.Reader) (Index, error) {
	var (
		idx    Index
		offset int64
		header = make([]byte, HeaderSize)
		br     = bufio.NewReaderSize(r, 64<<10)
	)
	for {
		n, err := io.ReadFull(br, header)
		if err == io.EOF {
			return idx, nil
		}
		if err == io.ErrUnexpectedEOF {
			idx.markTruncated(offset)
			return idx, nil
		}
		if err != nil {
			return idx, err
		}

		length := payloadLength(header[:n])
		payload := make([]byte, min(length, MaxPayload))
		got, err := io.ReadFull(br, payload)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			idx.markTruncated(offset)
			return idx, nil
		}
		if err != nil {
			return idx, err
		}

		frameEnd := offset + HeaderSize + length
		switch {
		case length == 0:
			idx.Gaps = append(idx.Gaps, Gap{Offset: offset, Err: errors.ReplayCorruption(offset, errZeroLength)})
		case length > MaxPayload:
			// Oversized header; skip what it claims and resync after it.
			if _, err := io.CopyN(io.Discard, br, length-int64(got)); err != nil {
				idx.markTruncated(offset)
				return idx, nil
			}
			idx.Gaps = append(idx.Gaps, Gap{Offset: offset, Err: errors.ReplayCorruption(offset, errOversized)})
		default:
			s, err := DecodePayload(payload)
			if err != nil {
				idx.Gaps = append(idx.Gaps, Gap{Offset: offset, Err: errors.ReplayCorruption(offset, err)})
				break
			}
			idx.Frames = append(idx.Frames, FrameRef{
				Offset:     offset,
				Length:     length,
				Sequence:   s.Sequence,
				CapturedAt: s.CapturedAt.Wall,
				Mono:       s.CapturedAt.Mono,
			})
		}
		offset = frameEnd
		idx.GoodOffset = offset
	}
}

func (idx *Index) markTruncated(offset int64) {
	idx.EndedEarly = true
	idx.Truncated = errors.ReplayTruncated(offset)
}

// Path returns the log path.
func (r *Reader) Path() string { return r.path }

// Index returns the scan result.
func (r *Reader) Index() Index { return r.index }

// Len returns the number of readable frames.
func (r *Reader) Len() int { return len(r.index.Frames) }

// ReadFrame decodes the i-th readable frame.
func (r *Reader) ReadFrame(i int) (snapshot.Snapshot, error) {
	if i < 0 || i >= len(r.index.Frames) {
		return snapshot.Snapshot{}, errors.InvalidNavigation("frame index out of range")
	}
	ref := r.index.Frames[i]
	payload := make([]byte, ref.Length)
	if _, err := r.file.ReadAt(payload, ref.Offset+HeaderSize); err != nil {
		return snapshot.Snapshot{}, errors.SessionOpen(r.path, err)
	}
	s, err := DecodePayload(payload)
	if err != nil {
		return snapshot.Snapshot{}, errors.ReplayCorruption(ref.Offset, err)
	}
	return s, nil
}

// Close releases the file handle.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}
