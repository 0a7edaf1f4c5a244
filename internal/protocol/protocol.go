// Package protocol implements the framed binary request/response encoding
// used on the local UNIX-domain socket, per spec §6: a fixed u32 version/
// action header, length-prefixed strings and lists, 32-bit integers, and
// BEGIN/END result framing.
package protocol

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Version is the fixed protocol version this codec speaks.
const Version uint32 = 2

// Record markers bracket each entry in a streamed response (spec §6: "BEGIN
// = 1, END = 2 (illustrative); VERSION is a fixed constant").
const (
	RecordBegin uint32 = 1
	RecordEnd   uint32 = 2
)

// Action identifies one request/response pair's schema.
type Action uint32

const (
	ActionConfigGet Action = iota + 1
	ActionAliasByName
	ActionAliasAll
	ActionEtherByName
	ActionEtherByEther
	ActionEtherAll
	ActionGroupByName
	ActionGroupByGID
	ActionGroupByMember
	ActionGroupAll
	ActionHostByName
	ActionHostByAddr
	ActionHostAll
	ActionNetgroupByName
	ActionNetgroupAll
	ActionNetworkByName
	ActionNetworkByAddr
	ActionNetworkAll
	ActionPasswdByName
	ActionPasswdByUID
	ActionPasswdAll
	ActionProtocolByName
	ActionProtocolByNumber
	ActionProtocolAll
	ActionRPCByName
	ActionRPCByNumber
	ActionRPCAll
	ActionServiceByName
	ActionServiceByNumber
	ActionServiceAll
	ActionShadowByName
	ActionShadowAll
	ActionAutomountByName
	ActionAutomountAll
	ActionPAMAuthc
	ActionPAMAuthz
	ActionPAMSessO
	ActionPAMSessC
	ActionPAMPwmod
	ActionUsermod
)

// maxReadString bounds any single length-prefixed field read off the wire,
// guarding against a hostile or corrupt peer requesting an unbounded
// allocation (spec §7: malformed request -> ProtocolError, connection closed).
const maxReadString = 1 << 20 // 1 MiB

// maxReadList bounds the element count of a length-prefixed list.
const maxReadList = 1 << 16

// ErrMalformed indicates the peer sent a frame this codec cannot parse
// (spec §7 ProtocolError).
var ErrMalformed = fmt.Errorf("protocol: malformed request")

// Reader decodes request frames from the local socket.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r for framed reads.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Header is the fixed u32 VERSION, u32 ACTION preamble shared by every
// request and response.
type Header struct {
	Version uint32
	Action  Action
}

// ReadHeader reads the fixed request header.
func (r *Reader) ReadHeader() (Header, error) {
	version, err := r.ReadUint32()
	if err != nil {
		return Header{}, err
	}
	action, err := r.ReadUint32()
	if err != nil {
		return Header{}, err
	}
	return Header{Version: version, Action: Action(action)}, nil
}

// ReadUint32 reads one big-endian u32 field.
func (r *Reader) ReadUint32() (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r.r, buf[:]); err != nil {
		return 0, wrapReadErr(err)
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// ReadInt32 reads one signed 32-bit field (used for uid/gid/numeric values).
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

// ReadString reads a u32-length-prefixed, non-terminated byte string.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return "", err
	}
	if n > maxReadString {
		return "", fmt.Errorf("%w: string length %d exceeds limit", ErrMalformed, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return "", wrapReadErr(err)
	}
	return string(buf), nil
}

// ReadStringList reads a u32 count followed by that many length-prefixed
// strings (the "length-prefixed" list variant, spec §6).
func (r *Reader) ReadStringList() ([]string, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if n > maxReadList {
		return nil, fmt.Errorf("%w: list length %d exceeds limit", ErrMalformed, n)
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// ReadNullTerminatedList reads strings separated by an empty-string
// terminator: a zero-length ReadString marks the end of the list (the
// second, null-terminated list variant, spec §6).
func (r *Reader) ReadNullTerminatedList() ([]string, error) {
	var out []string
	for {
		s, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		if s == "" {
			return out, nil
		}
		out = append(out, s)
		if len(out) > maxReadList {
			return nil, fmt.Errorf("%w: null-terminated list exceeds limit", ErrMalformed)
		}
	}
}

// Address is a network address field: an address-family tag, the raw
// address bytes, and their length (spec §6 field schema for host/network
// lookups).
type Address struct {
	Family int32
	Bytes  []byte
}

// ReadAddress reads one Address field.
func (r *Reader) ReadAddress() (Address, error) {
	family, err := r.ReadInt32()
	if err != nil {
		return Address{}, err
	}
	length, err := r.ReadUint32()
	if err != nil {
		return Address{}, err
	}
	if length > 64 {
		return Address{}, fmt.Errorf("%w: address length %d exceeds limit", ErrMalformed, length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return Address{}, wrapReadErr(err)
	}
	return Address{Family: family, Bytes: buf}, nil
}

func wrapReadErr(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return err
}

// Writer encodes response frames onto the local socket.
type Writer struct {
	w *bufio.Writer
}

// NewWriter wraps w for framed writes.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteHeader writes the fixed response header.
func (w *Writer) WriteHeader(h Header) error {
	if err := w.WriteUint32(h.Version); err != nil {
		return err
	}
	return w.WriteUint32(uint32(h.Action))
}

// WriteUint32 writes one big-endian u32 field.
func (w *Writer) WriteUint32(v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.w.Write(buf[:])
	return err
}

// WriteInt32 writes one signed 32-bit field.
func (w *Writer) WriteInt32(v int32) error {
	return w.WriteUint32(uint32(v))
}

// WriteString writes a u32-length-prefixed string.
func (w *Writer) WriteString(s string) error {
	if err := w.WriteUint32(uint32(len(s))); err != nil {
		return err
	}
	_, err := w.w.WriteString(s)
	return err
}

// WriteStringList writes a u32 count followed by that many length-prefixed
// strings.
func (w *Writer) WriteStringList(list []string) error {
	if err := w.WriteUint32(uint32(len(list))); err != nil {
		return err
	}
	for _, s := range list {
		if err := w.WriteString(s); err != nil {
			return err
		}
	}
	return nil
}

// WriteBegin emits a BEGIN record marker, starting one result entry.
func (w *Writer) WriteBegin() error {
	return w.WriteUint32(RecordBegin)
}

// WriteEnd emits the terminal END marker for the whole response stream.
func (w *Writer) WriteEnd() error {
	return w.WriteUint32(RecordEnd)
}

// Flush pushes any buffered bytes to the underlying writer. The caller MUST
// call this once after a response is fully written, since a connection
// error mid-stream must not leave a partial record observable (spec §8
// invariant: "no partial response record is observable by the client").
func (w *Writer) Flush() error {
	return w.w.Flush()
}
