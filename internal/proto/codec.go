package proto

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Frames are CBOR data items with integer map keys. CBOR is self-describing,
// so no length prefix is layered on top: the decoder knows where each frame
// ends and accumulates partial input until a full item is available.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic(err)
	}
}

// DecodeError reports bytes that are not a valid encoding of any frame.
type DecodeError struct {
	err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame: %v", e.err)
}

func (e *DecodeError) Unwrap() error {
	return e.err
}

// EncodeFrame serializes f. Encoding is deterministic and total for frames
// built through the package constructors.
func EncodeFrame(f *Frame) ([]byte, error) {
	return encMode.Marshal(f)
}

// DecodeFrame deserializes exactly one frame from p. Trailing or malformed
// bytes yield a DecodeError.
func DecodeFrame(p []byte) (*Frame, error) {
	var f Frame
	if err := decMode.Unmarshal(p, &f); err != nil {
		return nil, &DecodeError{err}
	}
	if !f.Kind.valid() {
		return nil, &DecodeError{fmt.Errorf("unknown frame kind %d", f.Kind)}
	}
	return &f, nil
}

// Codec reassembles frames from a byte stream delivered in arbitrary chunks.
// Append bytes as they arrive, then drain complete frames with Next. Not safe
// for concurrent use; each session owns one inbound codec.
type Codec struct {
	buf bytes.Buffer
}

// Append adds raw bytes from the transport to the reassembly buffer.
func (c *Codec) Append(p []byte) {
	c.buf.Write(p)
}

// Buffered reports how many unconsumed bytes the codec holds.
func (c *Codec) Buffered() int {
	return c.buf.Len()
}

// Discard drops any partially accumulated input, resynchronizing the stream
// after a decode failure.
func (c *Codec) Discard() {
	c.buf.Reset()
}

// Next returns the next complete frame, or (nil, nil) when the buffer holds
// only a partial frame. No bytes are consumed until a full frame decodes; a
// DecodeError means the buffered bytes cannot begin any valid frame.
func (c *Codec) Next() (*Frame, error) {
	if c.buf.Len() == 0 {
		return nil, nil
	}

	dec := decMode.NewDecoder(bytes.NewReader(c.buf.Bytes()))
	var f Frame
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, nil
		}
		return nil, &DecodeError{err}
	}
	c.buf.Next(dec.NumBytesRead())

	if !f.Kind.valid() {
		return nil, &DecodeError{fmt.Errorf("unknown frame kind %d", f.Kind)}
	}
	return &f, nil
}
