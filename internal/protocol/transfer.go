package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/jason-s-yu/arcade/internal/errs"
)

// frameHeaderSize is the length prefix of a bulk transfer: an unsigned
// 64-bit big-endian byte count.
const frameHeaderSize = 8

// WriteFrame writes the length prefix and then exactly size bytes from r.
func WriteFrame(w io.Writer, r io.Reader, size int64) error {
	if size < 0 {
		return fmt.Errorf("negative frame size %d", size)
	}
	var hdr [frameHeaderSize]byte
	binary.BigEndian.PutUint64(hdr[:], uint64(size))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	n, err := io.CopyN(w, r, size)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errs.Transfer(fmt.Sprintf("source ended after %d of %d bytes", n, size), io.ErrUnexpectedEOF)
		}
		return err
	}
	return nil
}

// ReadFrame reads a length prefix and copies exactly that many bytes into w.
// A stream that ends early yields a KindTransfer error.
func ReadFrame(r io.Reader, w io.Writer) (int64, error) {
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, errs.Transfer("missing transfer header", err)
	}
	size := binary.BigEndian.Uint64(hdr[:])
	if size > uint64(1<<63-1) {
		return 0, errs.Transfer(fmt.Sprintf("declared size %d too large", size), nil)
	}
	n, err := io.CopyN(w, r, int64(size))
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return n, errs.Transfer(fmt.Sprintf("received %d of %d bytes", n, size), err)
	}
	return n, nil
}
