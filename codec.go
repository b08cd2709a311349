package ern

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"math/big"
	"strconv"

	"github.com/klauspost/compress/flate"
)

// External term format tags. Names follow the informal tag table rather
// than BEAM's internal macro names; values are frozen by the wire
// format and must never change.
const (
	tagVersion     = 131
	tagSmallInt    = 97
	tagInt         = 98
	tagOldFloat    = 99
	tagNewFloat    = 70
	tagAtom        = 100
	tagRef         = 101
	tagPort        = 102
	tagPid         = 103
	tagSmallTuple  = 104
	tagLargeTuple  = 105
	tagNil         = 106
	tagString      = 107
	tagList        = 108
	tagBinary      = 109
	tagBitBinary   = 77
	tagSmallBig    = 110
	tagLargeBig    = 111
	tagNewFun      = 112
	tagExternalFun = 113
	tagNewRef      = 114
	tagFun         = 117
	tagCompressed  = 80
)

// maxCompressedNesting bounds how many Compressed wrappers decode will
// unwrap before giving up; a peer nesting compressed terms inside each
// other to blow up memory on inflate hits this instead.
const maxCompressedNesting = 4

const maxAtomLen = 255

// EncodeAny encodes t as a complete root term: a version byte (131)
// followed by t's external-format bytes. Use this for anything that
// stands alone on the wire or on disk; use Encode for a term that will
// be embedded inside a larger framed message (the distribution control
// tuple and its payload share a single leading version byte, for
// instance).
func EncodeAny(t Term) ([]byte, error) {
	e := &encoder{}
	e.buf.WriteByte(tagVersion)
	if err := e.encodeTerm(t); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

// Encode encodes t's external-format bytes with no leading version
// byte.
func Encode(t Term) ([]byte, error) {
	e := &encoder{}
	if err := e.encodeTerm(t); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

// DecodeAny decodes data as a version-prefixed root term and requires
// every byte of data to belong to it.
func DecodeAny(data []byte) (Term, error) {
	d := NewDecoder(data)
	tag, err := d.readByte()
	if err != nil {
		return nil, err
	}
	if tag != tagVersion {
		return nil, newDecodeError("expected version byte 131, got %d", tag)
	}
	t, err := d.decodeTerm()
	if err != nil {
		return nil, err
	}
	if d.r.Len() != 0 {
		return nil, newDecodeError("%d trailing bytes after root term", d.r.Len())
	}
	return t, nil
}

// Decode decodes data as a single term with no leading version byte,
// requiring every byte of data to belong to it.
func Decode(data []byte) (Term, error) {
	d := NewDecoder(data)
	t, err := d.decodeTerm()
	if err != nil {
		return nil, err
	}
	if d.r.Len() != 0 {
		return nil, newDecodeError("%d trailing bytes after term", d.r.Len())
	}
	return t, nil
}

// encoder accumulates external-format bytes. poke lets a caller reserve
// space up front and fill it in once the size of what follows is known,
// which the new-fun encoding needs for its leading total-size field.
type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) poke(offset int, b []byte) {
	copy(e.buf.Bytes()[offset:], b)
}

func (e *encoder) encodeTerm(t Term) error {
	switch v := t.(type) {
	case Int:
		return e.encodeInt(v)
	case Float64:
		return e.encodeFloat(v)
	case Atom:
		return e.encodeAtom(v)
	case ErlString:
		return e.encodeString(v)
	case Binary:
		return e.encodeBinary(v)
	case BitString:
		return e.encodeBitString(v)
	case Tuple:
		return e.encodeTuple(v)
	case List:
		return e.encodeList(v)
	case Pid:
		return e.encodePid(v)
	case Port:
		return e.encodePort(v)
	case Ref:
		return e.encodeRef(v)
	case Fun:
		return e.encodeFun(v)
	case ExternalFun:
		return e.encodeExternalFun(v)
	case Compressed:
		return e.encodeCompressed(v)
	default:
		return newDecodeError("encode: unhandled term type %T", t)
	}
}

func (e *encoder) encodeInt(i Int) error {
	if v, ok := i.Int64(); ok {
		if v >= 0 && v <= 255 {
			e.buf.WriteByte(tagSmallInt)
			e.buf.WriteByte(byte(v))
			return nil
		}
		if v >= -(1<<27) && v <= (1<<27)-1 {
			e.buf.WriteByte(tagInt)
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], uint32(int32(v)))
			e.buf.Write(b[:])
			return nil
		}
	}
	return e.encodeBigInt(i)
}

func (e *encoder) encodeBigInt(i Int) error {
	bi := i.AsBig()
	sign := byte(0)
	if bi.Sign() < 0 {
		sign = 1
	}
	mag := new(big.Int).Abs(bi).Bytes() // big-endian magnitude, no sign
	le := make([]byte, len(mag))
	for idx, b := range mag {
		le[len(mag)-1-idx] = b
	}
	if len(le) <= 255 {
		e.buf.WriteByte(tagSmallBig)
		e.buf.WriteByte(byte(len(le)))
	} else {
		e.buf.WriteByte(tagLargeBig)
		var lb [4]byte
		binary.BigEndian.PutUint32(lb[:], uint32(len(le)))
		e.buf.Write(lb[:])
	}
	e.buf.WriteByte(sign)
	e.buf.Write(le)
	return nil
}

func (e *encoder) encodeFloat(f Float64) error {
	e.buf.WriteByte(tagNewFloat)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(float64(f)))
	e.buf.Write(b[:])
	return nil
}

func (e *encoder) encodeAtom(a Atom) error {
	if len(a) > maxAtomLen {
		return newRangeError("atom %q exceeds %d bytes", string(a), maxAtomLen)
	}
	e.buf.WriteByte(tagAtom)
	var lb [2]byte
	binary.BigEndian.PutUint16(lb[:], uint16(len(a)))
	e.buf.Write(lb[:])
	e.buf.WriteString(string(a))
	return nil
}

func (e *encoder) encodeString(s ErlString) error {
	if len(s) == 0 {
		e.buf.WriteByte(tagNil)
		return nil
	}
	if s.fitsByteString() {
		e.buf.WriteByte(tagString)
		var lb [2]byte
		binary.BigEndian.PutUint16(lb[:], uint16(len(s)))
		e.buf.Write(lb[:])
		for _, r := range s {
			e.buf.WriteByte(byte(r))
		}
		return nil
	}
	e.buf.WriteByte(tagList)
	var ab [4]byte
	binary.BigEndian.PutUint32(ab[:], uint32(len(s)))
	e.buf.Write(ab[:])
	for _, r := range s {
		if err := e.encodeTerm(NewInt(int64(r))); err != nil {
			return err
		}
	}
	e.buf.WriteByte(tagNil)
	return nil
}

func (e *encoder) encodeBinary(b Binary) error {
	e.buf.WriteByte(tagBinary)
	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], uint32(len(b)))
	e.buf.Write(lb[:])
	e.buf.Write(b)
	return nil
}

func (e *encoder) encodeBitString(b BitString) error {
	e.buf.WriteByte(tagBitBinary)
	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], uint32(len(b.Data)))
	e.buf.Write(lb[:])
	usedBits := byte(0)
	if len(b.Data) > 0 {
		usedBits = 8 - b.PadBits
	}
	e.buf.WriteByte(usedBits)
	e.buf.Write(b.Data)
	return nil
}

func (e *encoder) encodeTuple(t Tuple) error {
	if len(t) < 256 {
		e.buf.WriteByte(tagSmallTuple)
		e.buf.WriteByte(byte(len(t)))
	} else {
		e.buf.WriteByte(tagLargeTuple)
		var ab [4]byte
		binary.BigEndian.PutUint32(ab[:], uint32(len(t)))
		e.buf.Write(ab[:])
	}
	for _, elem := range t {
		if err := e.encodeTerm(elem); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) encodeList(l List) error {
	if len(l.Items) == 0 && l.Tail == nil {
		e.buf.WriteByte(tagNil)
		return nil
	}
	e.buf.WriteByte(tagList)
	var ab [4]byte
	binary.BigEndian.PutUint32(ab[:], uint32(len(l.Items)))
	e.buf.Write(ab[:])
	for _, item := range l.Items {
		if err := e.encodeTerm(item); err != nil {
			return err
		}
	}
	if l.Tail == nil {
		e.buf.WriteByte(tagNil)
		return nil
	}
	return e.encodeTerm(l.Tail)
}

func (e *encoder) encodePid(p Pid) error {
	e.buf.WriteByte(tagPid)
	if err := e.encodeAtom(p.Node); err != nil {
		return err
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], p.ID&0x7FFF)
	e.buf.Write(b[:])
	binary.BigEndian.PutUint32(b[:], p.Serial&0x1FFF)
	e.buf.Write(b[:])
	e.buf.WriteByte(byte(p.Creation & 0x3))
	return nil
}

func (e *encoder) encodePort(p Port) error {
	e.buf.WriteByte(tagPort)
	if err := e.encodeAtom(p.Node); err != nil {
		return err
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], p.ID&0x0FFFFFFF)
	e.buf.Write(b[:])
	e.buf.WriteByte(byte(p.Creation & 0x3))
	return nil
}

func (e *encoder) encodeRef(r Ref) error {
	if len(r.IDs) <= 1 {
		e.buf.WriteByte(tagRef)
		if err := e.encodeAtom(r.Node); err != nil {
			return err
		}
		var id uint32
		if len(r.IDs) == 1 {
			id = r.IDs[0] & 0x3FFFF
		}
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], id)
		e.buf.Write(b[:])
		e.buf.WriteByte(byte(r.Creation & 0x3))
		return nil
	}
	e.buf.WriteByte(tagNewRef)
	var ab [2]byte
	binary.BigEndian.PutUint16(ab[:], uint16(len(r.IDs)))
	e.buf.Write(ab[:])
	if err := e.encodeAtom(r.Node); err != nil {
		return err
	}
	e.buf.WriteByte(byte(r.Creation & 0x3))
	for i, id := range r.IDs {
		v := id
		if i == 0 {
			v &= 0x3FFFF
		}
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		e.buf.Write(b[:])
	}
	return nil
}

func (e *encoder) encodeFun(f Fun) error {
	if f.IsNew {
		return e.encodeNewFun(f)
	}
	e.buf.WriteByte(tagFun)
	var nb [4]byte
	binary.BigEndian.PutUint32(nb[:], uint32(len(f.FreeVars)))
	e.buf.Write(nb[:])
	if err := e.encodePid(f.Pid); err != nil {
		return err
	}
	if err := e.encodeAtom(f.Module); err != nil {
		return err
	}
	if err := e.encodeTerm(NewInt(int64(f.Index))); err != nil {
		return err
	}
	if err := e.encodeTerm(NewInt(int64(f.Uniq))); err != nil {
		return err
	}
	for _, fv := range f.FreeVars {
		if err := e.encodeTerm(fv); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) encodeNewFun(f Fun) error {
	e.buf.WriteByte(tagNewFun)
	tagOffset := e.buf.Len() - 1
	sizeOffset := e.buf.Len()
	e.buf.Write([]byte{0, 0, 0, 0})
	e.buf.WriteByte(f.Arity)
	e.buf.Write(f.MD5[:])
	var ib [4]byte
	binary.BigEndian.PutUint32(ib[:], f.Index)
	e.buf.Write(ib[:])
	binary.BigEndian.PutUint32(ib[:], uint32(len(f.FreeVars)))
	e.buf.Write(ib[:])
	if err := e.encodeAtom(f.Module); err != nil {
		return err
	}
	if err := e.encodeTerm(NewInt(int64(f.OldIndex))); err != nil {
		return err
	}
	if err := e.encodeTerm(NewInt(int64(f.Uniq))); err != nil {
		return err
	}
	if err := e.encodePid(f.Pid); err != nil {
		return err
	}
	for _, fv := range f.FreeVars {
		if err := e.encodeTerm(fv); err != nil {
			return err
		}
	}
	var sb [4]byte
	binary.BigEndian.PutUint32(sb[:], uint32(e.buf.Len()-tagOffset))
	e.poke(sizeOffset, sb[:])
	return nil
}

func (e *encoder) encodeExternalFun(x ExternalFun) error {
	e.buf.WriteByte(tagExternalFun)
	if err := e.encodeAtom(x.Module); err != nil {
		return err
	}
	if err := e.encodeAtom(x.Function); err != nil {
		return err
	}
	return e.encodeTerm(NewInt(int64(x.Arity)))
}

func (e *encoder) encodeCompressed(c Compressed) error {
	inner := &encoder{}
	if err := inner.encodeTerm(c.Inner); err != nil {
		return err
	}
	raw := inner.buf.Bytes()
	var compressed bytes.Buffer
	zw, err := flate.NewWriter(&compressed, flate.DefaultCompression)
	if err != nil {
		return err
	}
	if _, err := zw.Write(raw); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	e.buf.WriteByte(tagCompressed)
	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], uint32(len(raw)))
	e.buf.Write(lb[:])
	e.buf.Write(compressed.Bytes())
	return nil
}

// Decoder decodes a sequence of terms sharing a single in-memory
// buffer. This is what the distribution connection loop uses to pull
// the control tuple and (if present) the following message payload out
// of one frame without either one's decode over-reading into the
// other's bytes, which is the trap a connection-wide io.Reader falls
// into once a Compressed term's internal bufio read-ahead is involved.
type Decoder struct {
	r     *bytes.Reader
	depth int
}

// NewDecoder wraps data for sequential term-at-a-time decoding.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{r: bytes.NewReader(data)}
}

// Next decodes one term with no version-byte handling, leaving the
// reader positioned at the start of whatever follows.
func (d *Decoder) Next() (Term, error) {
	return d.decodeTerm()
}

// Remaining reports how many undecoded bytes are left in the buffer.
func (d *Decoder) Remaining() int { return d.r.Len() }

func (d *Decoder) readByte() (byte, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, newDecodeError("unexpected end of input: %v", err)
	}
	return b, nil
}

func (d *Decoder) readN(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		return nil, newDecodeError("unexpected end of input: %v", err)
	}
	return b, nil
}

func (d *Decoder) readUint16() (uint16, error) {
	b, err := d.readN(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (d *Decoder) readUint32() (uint32, error) {
	b, err := d.readN(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *Decoder) decodeTerm() (Term, error) {
	tag, err := d.readByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagSmallInt:
		b, err := d.readByte()
		if err != nil {
			return nil, err
		}
		return NewInt(int64(b)), nil
	case tagInt:
		b, err := d.readN(4)
		if err != nil {
			return nil, err
		}
		return NewInt(int64(int32(binary.BigEndian.Uint32(b)))), nil
	case tagSmallBig, tagLargeBig:
		return d.decodeBigInt(tag)
	case tagOldFloat:
		return d.decodeOldFloat()
	case tagNewFloat:
		b, err := d.readN(8)
		if err != nil {
			return nil, err
		}
		return Float64(math.Float64frombits(binary.BigEndian.Uint64(b))), nil
	case tagAtom:
		return d.decodeAtomBody()
	case tagNil:
		return List{}, nil
	case tagString:
		return d.decodeByteString()
	case tagList:
		return d.decodeList()
	case tagSmallTuple:
		arity, err := d.readByte()
		if err != nil {
			return nil, err
		}
		return d.decodeTupleBody(int(arity))
	case tagLargeTuple:
		arity, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		return d.decodeTupleBody(int(arity))
	case tagBinary:
		return d.decodeBinary()
	case tagBitBinary:
		return d.decodeBitBinary()
	case tagPid:
		return d.decodePid()
	case tagPort:
		return d.decodePort()
	case tagRef:
		return d.decodeOldRef()
	case tagNewRef:
		return d.decodeNewRef()
	case tagFun:
		return d.decodeOldFun()
	case tagNewFun:
		return d.decodeNewFun()
	case tagExternalFun:
		return d.decodeExternalFun()
	case tagCompressed:
		return d.decodeCompressed()
	default:
		return nil, newDecodeError("unknown term tag %d", tag)
	}
}

func (d *Decoder) decodeBigInt(tag byte) (Term, error) {
	var n int
	if tag == tagSmallBig {
		b, err := d.readByte()
		if err != nil {
			return nil, err
		}
		n = int(b)
	} else {
		u, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		n = int(u)
	}
	sign, err := d.readByte()
	if err != nil {
		return nil, err
	}
	le, err := d.readN(n)
	if err != nil {
		return nil, err
	}
	be := make([]byte, n)
	for i, b := range le {
		be[n-1-i] = b
	}
	v := new(big.Int).SetBytes(be)
	if sign == 1 {
		v.Neg(v)
	}
	return NewBigInt(v), nil
}

func (d *Decoder) decodeOldFloat() (Term, error) {
	b, err := d.readN(31)
	if err != nil {
		return nil, err
	}
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	f, perr := strconv.ParseFloat(string(b[:end]), 64)
	if perr != nil {
		return nil, newDecodeError("malformed old-style float: %v", perr)
	}
	return Float64(f), nil
}

// decodeAtom reads an atom nested inside another term, which the encoder
// writes with its own atom tag.
func (d *Decoder) decodeAtom() (Term, error) {
	if tag, err := d.readByte(); err != nil || tag != tagAtom {
		return nil, newDecodeError("expected a tagged atom")
	}
	return d.decodeAtomBody()
}

func (d *Decoder) decodeAtomBody() (Term, error) {
	n, err := d.readUint16()
	if err != nil {
		return nil, err
	}
	if n > maxAtomLen {
		return nil, newDecodeError("atom of %d bytes exceeds %d bytes", n, maxAtomLen)
	}
	b, err := d.readN(int(n))
	if err != nil {
		return nil, err
	}
	return Atom(string(b)), nil
}

func (d *Decoder) decodeByteString() (Term, error) {
	n, err := d.readUint16()
	if err != nil {
		return nil, err
	}
	b, err := d.readN(int(n))
	if err != nil {
		return nil, err
	}
	s := make(ErlString, len(b))
	for i, c := range b {
		s[i] = rune(c)
	}
	return s, nil
}

func (d *Decoder) decodeList() (Term, error) {
	arity, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	items := make([]Term, arity)
	for i := range items {
		items[i], err = d.decodeTerm()
		if err != nil {
			return nil, err
		}
	}
	tail, err := d.decodeTerm()
	if err != nil {
		return nil, err
	}
	if tl, ok := tail.(List); ok && len(tl.Items) == 0 && tl.Tail == nil {
		return List{Items: items}, nil
	}
	return List{Items: items, Tail: tail}, nil
}

func (d *Decoder) decodeTupleBody(arity int) (Term, error) {
	elems := make(Tuple, arity)
	for i := range elems {
		var err error
		elems[i], err = d.decodeTerm()
		if err != nil {
			return nil, err
		}
	}
	return elems, nil
}

func (d *Decoder) decodeBinary() (Term, error) {
	n, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	b, err := d.readN(int(n))
	if err != nil {
		return nil, err
	}
	return Binary(b), nil
}

func (d *Decoder) decodeBitBinary() (Term, error) {
	n, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	usedBits, err := d.readByte()
	if err != nil {
		return nil, err
	}
	b, err := d.readN(int(n))
	if err != nil {
		return nil, err
	}
	var pad uint8
	if n > 0 {
		pad = 8 - usedBits
	}
	return BitString{Data: b, PadBits: pad}, nil
}

func (d *Decoder) decodePid() (Term, error) {
	node, err := d.decodeAtom()
	if err != nil {
		return nil, err
	}
	id, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	serial, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	creation, err := d.readByte()
	if err != nil {
		return nil, err
	}
	return Pid{Node: node.(Atom), ID: id & 0x7FFF, Serial: serial & 0x1FFF, Creation: uint32(creation) & 0x3}, nil
}

func (d *Decoder) decodePort() (Term, error) {
	node, err := d.decodeAtom()
	if err != nil {
		return nil, err
	}
	id, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	creation, err := d.readByte()
	if err != nil {
		return nil, err
	}
	return Port{Node: node.(Atom), ID: id & 0x0FFFFFFF, Creation: uint32(creation) & 0x3}, nil
}

func (d *Decoder) decodeOldRef() (Term, error) {
	node, err := d.decodeAtom()
	if err != nil {
		return nil, err
	}
	id, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	creation, err := d.readByte()
	if err != nil {
		return nil, err
	}
	return Ref{Node: node.(Atom), Creation: uint32(creation) & 0x3, IDs: []uint32{id & 0x3FFFF}}, nil
}

func (d *Decoder) decodeNewRef() (Term, error) {
	arity, err := d.readUint16()
	if err != nil {
		return nil, err
	}
	node, err := d.decodeAtom()
	if err != nil {
		return nil, err
	}
	creation, err := d.readByte()
	if err != nil {
		return nil, err
	}
	ids := make([]uint32, arity)
	for i := range ids {
		v, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		if i == 0 {
			v &= 0x3FFFF
		}
		ids[i] = v
	}
	return Ref{Node: node.(Atom), Creation: uint32(creation) & 0x3, IDs: ids}, nil
}

func (d *Decoder) decodeOldFun() (Term, error) {
	numFree, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	if tag, err := d.readByte(); err != nil || tag != tagPid {
		return nil, newDecodeError("expected a tagged pid in fun")
	}
	pidTerm, err := d.decodePid()
	if err != nil {
		return nil, err
	}
	module, err := d.decodeAtom()
	if err != nil {
		return nil, err
	}
	index, err := d.decodeTerm()
	if err != nil {
		return nil, err
	}
	uniq, err := d.decodeTerm()
	if err != nil {
		return nil, err
	}
	free := make([]Term, numFree)
	for i := range free {
		free[i], err = d.decodeTerm()
		if err != nil {
			return nil, err
		}
	}
	iv, _ := asInt64(index)
	uv, _ := asInt64(uniq)
	return Fun{
		Pid:      pidTerm.(Pid),
		Module:   module.(Atom),
		Index:    uint32(iv),
		Uniq:     uint32(uv),
		FreeVars: free,
	}, nil
}

func (d *Decoder) decodeNewFun() (Term, error) {
	if _, err := d.readN(4); err != nil { // total size, re-derivable from remaining content
		return nil, err
	}
	arity, err := d.readByte()
	if err != nil {
		return nil, err
	}
	var md5 [16]byte
	b, err := d.readN(16)
	if err != nil {
		return nil, err
	}
	copy(md5[:], b)
	index, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	numFree, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	module, err := d.decodeAtom()
	if err != nil {
		return nil, err
	}
	oldIndex, err := d.decodeTerm()
	if err != nil {
		return nil, err
	}
	uniq, err := d.decodeTerm()
	if err != nil {
		return nil, err
	}
	if tag, err := d.readByte(); err != nil || tag != tagPid {
		return nil, newDecodeError("expected a tagged pid in fun")
	}
	pidTerm, err := d.decodePid()
	if err != nil {
		return nil, err
	}
	free := make([]Term, numFree)
	for i := range free {
		free[i], err = d.decodeTerm()
		if err != nil {
			return nil, err
		}
	}
	oiv, _ := asInt64(oldIndex)
	uv, _ := asInt64(uniq)
	return Fun{
		Pid:      pidTerm.(Pid),
		Module:   module.(Atom),
		Index:    index,
		Uniq:     uint32(uv),
		FreeVars: free,
		IsNew:    true,
		Arity:    arity,
		MD5:      md5,
		OldIndex: uint32(oiv),
	}, nil
}

func (d *Decoder) decodeExternalFun() (Term, error) {
	module, err := d.decodeAtom()
	if err != nil {
		return nil, err
	}
	function, err := d.decodeAtom()
	if err != nil {
		return nil, err
	}
	arity, err := d.decodeTerm()
	if err != nil {
		return nil, err
	}
	av, _ := asInt64(arity)
	return ExternalFun{Module: module.(Atom), Function: function.(Atom), Arity: uint8(av)}, nil
}

func (d *Decoder) decodeCompressed() (Term, error) {
	if d.depth >= maxCompressedNesting {
		return nil, newDecodeError("compressed term nesting exceeds limit of %d", maxCompressedNesting)
	}
	uncompressedLen, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	fr := flate.NewReader(d.r)
	defer fr.Close()
	raw := make([]byte, uncompressedLen)
	if _, err := io.ReadFull(fr, raw); err != nil {
		return nil, newDecodeError("inflating compressed term: %v", err)
	}
	inner := &Decoder{r: bytes.NewReader(raw), depth: d.depth + 1}
	t, err := inner.decodeTerm()
	if err != nil {
		return nil, err
	}
	if inner.r.Len() != 0 {
		return nil, newDecodeError("%d trailing bytes inside compressed term", inner.r.Len())
	}
	return Compressed{Inner: t}, nil
}

func asInt64(t Term) (int64, bool) {
	if i, ok := t.(Int); ok {
		return i.Int64()
	}
	return 0, false
}
