package secure

import (
	"bufio"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Streaming file format:
//
//	header:  version(1) | salt(16) | nonce prefix(7)
//	segment: AES-256-GCM(plaintext <= SegmentSize) with nonce
//	         prefix | big-endian segment counter(4) | last flag(1)
//
// The file key is HKDF(master, salt, InfoExport). The header is the
// additional data of every segment, and the last flag makes truncation at a
// segment boundary detectable.
const (
	SegmentSize = 4096

	streamVersion    = 1
	streamSaltSize   = 16
	streamPrefixSize = 7
	streamHeaderSize = 1 + streamSaltSize + streamPrefixSize
	streamTagSize    = 16
)

// ErrUnsupportedVersion is returned for files written by an unknown format version.
var ErrUnsupportedVersion = errors.New("unsupported encrypted file version")

// StreamWriter encrypts everything written to it into the underlying writer.
// Close must be called to flush the final segment; it does not close dst.
type StreamWriter struct {
	dst    io.Writer
	aead   cipher.AEAD
	header []byte
	buf    []byte
	seq    uint32
	closed bool
}

// NewStreamWriter writes a fresh header to dst and returns a writer that
// encrypts under a key derived from master.
func NewStreamWriter(dst io.Writer, master []byte) (*StreamWriter, error) {
	header := make([]byte, streamHeaderSize)
	header[0] = streamVersion
	random, err := RandomBytes(streamSaltSize + streamPrefixSize)
	if err != nil {
		return nil, fmt.Errorf("generating stream header: %w", err)
	}
	copy(header[1:], random)

	aead, err := streamAEAD(master, header)
	if err != nil {
		return nil, err
	}
	if _, err := dst.Write(header); err != nil {
		return nil, fmt.Errorf("writing stream header: %w", err)
	}

	return &StreamWriter{
		dst:    dst,
		aead:   aead,
		header: header,
		buf:    make([]byte, 0, SegmentSize),
	}, nil
}

// Write buffers p and emits every full segment that is known not to be last.
func (w *StreamWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errors.New("write to closed stream")
	}
	written := 0
	for len(p) > 0 {
		if len(w.buf) == SegmentSize {
			if err := w.flush(false); err != nil {
				return written, err
			}
		}
		n := copy(w.buf[len(w.buf):SegmentSize], p)
		w.buf = w.buf[:len(w.buf)+n]
		p = p[n:]
		written += n
	}
	return written, nil
}

// Close seals the remaining buffered data as the last segment.
func (w *StreamWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.flush(true)
}

func (w *StreamWriter) flush(last bool) error {
	if w.seq == math.MaxUint32 {
		return errors.New("stream too long")
	}
	out := w.aead.Seal(nil, segmentNonce(w.header, w.seq, last), w.buf, w.header)
	if _, err := w.dst.Write(out); err != nil {
		return fmt.Errorf("writing segment %d: %w", w.seq, err)
	}
	w.seq++
	w.buf = w.buf[:0]
	return nil
}

// StreamReader decrypts a stream produced by StreamWriter.
type StreamReader struct {
	src    *bufio.Reader
	aead   cipher.AEAD
	header []byte
	seq    uint32
	plain  []byte
	done   bool
}

// NewStreamReader reads and checks the header from src.
func NewStreamReader(src io.Reader, master []byte) (*StreamReader, error) {
	header := make([]byte, streamHeaderSize)
	if _, err := io.ReadFull(src, header); err != nil {
		return nil, fmt.Errorf("reading stream header: %w", ErrCorrupt)
	}
	if header[0] != streamVersion {
		return nil, ErrUnsupportedVersion
	}
	aead, err := streamAEAD(master, header)
	if err != nil {
		return nil, err
	}
	return &StreamReader{
		src:    bufio.NewReaderSize(src, SegmentSize+streamTagSize+1),
		aead:   aead,
		header: header,
	}, nil
}

// Read returns decrypted plaintext. A stream that ends without a valid last
// segment yields ErrCorrupt instead of io.EOF.
func (r *StreamReader) Read(p []byte) (int, error) {
	for len(r.plain) == 0 {
		if r.done {
			return 0, io.EOF
		}
		if err := r.next(); err != nil {
			return 0, err
		}
	}
	n := copy(p, r.plain)
	r.plain = r.plain[n:]
	return n, nil
}

func (r *StreamReader) next() error {
	segment := make([]byte, SegmentSize+streamTagSize)
	n, err := io.ReadFull(r.src, segment)
	switch {
	case err == io.EOF:
		return ErrCorrupt
	case err == io.ErrUnexpectedEOF:
	case err != nil:
		return fmt.Errorf("reading segment %d: %w", r.seq, err)
	}
	segment = segment[:n]

	last := false
	if _, err := r.src.Peek(1); err == io.EOF {
		last = true
	}

	plain, err := r.aead.Open(nil, segmentNonce(r.header, r.seq, last), segment, r.header)
	if err != nil {
		return ErrCorrupt
	}
	r.seq++
	r.plain = plain
	r.done = last
	return nil
}

func streamAEAD(master, header []byte) (cipher.AEAD, error) {
	key, err := DeriveKey(master, header[1:1+streamSaltSize], InfoExport)
	if err != nil {
		return nil, err
	}
	return newGCM(key)
}

func segmentNonce(header []byte, seq uint32, last bool) []byte {
	nonce := make([]byte, 12)
	copy(nonce, header[1+streamSaltSize:])
	binary.BigEndian.PutUint32(nonce[streamPrefixSize:], seq)
	if last {
		nonce[11] = 1
	}
	return nonce
}
