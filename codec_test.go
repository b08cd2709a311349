package ern

import (
	"bytes"
	"math/big"
	"testing"
)

func mustEncode(t *testing.T, term Term) []byte {
	t.Helper()
	b, err := Encode(term)
	if err != nil {
		t.Fatalf("Encode(%v): %v", term, err)
	}
	return b
}

// TestLiteralScenarios pins the exact byte sequences called out for the
// handful of terms whose wire bytes are easy to eyeball.
func TestLiteralScenarios(t *testing.T) {
	cases := []struct {
		name string
		term Term
		want []byte
		back Term // what Decode yields when it differs from term
	}{
		{"small int 0", NewInt(0), []byte{97, 0}, nil},
		{"int 1000", NewInt(1000), []byte{98, 0, 0, 3, 232}, nil},
		{"atom ok", Atom("ok"), []byte{100, 0, 2, 111, 107}, nil},
		{"string hi", NewString("hi"), []byte{107, 0, 2, 104, 105}, nil},
		// the empty string is written as nil, which decodes as the empty list
		{"string empty", NewString(""), []byte{106}, List{}},
		{"tuple a,1", Tuple{Atom("a"), NewInt(1)}, []byte{104, 2, 100, 0, 1, 97, 97, 1}, nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := mustEncode(t, c.term)
			if !bytes.Equal(got, c.want) {
				t.Fatalf("Encode(%v) = % x, want % x", c.term, got, c.want)
			}
			decoded, err := Decode(got)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			want := c.back
			if want == nil {
				want = c.term
			}
			if !decoded.Equal(want) {
				t.Fatalf("Decode(Encode(%v)) = %v, want %v", c.term, decoded, want)
			}
		})
	}
}

func roundTrip(t *testing.T, term Term) Term {
	t.Helper()
	b := mustEncode(t, term)
	decoded, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !decoded.Equal(term) {
		t.Fatalf("round trip mismatch: got %v, want %v", decoded, term)
	}
	return decoded
}

func TestRoundTripIntegers(t *testing.T) {
	roundTrip(t, NewInt(0))
	roundTrip(t, NewInt(255))
	roundTrip(t, NewInt(256))
	roundTrip(t, NewInt(-1))
	roundTrip(t, NewInt((1<<27)-1))
	roundTrip(t, NewInt(-(1 << 27)))
	roundTrip(t, NewInt(1<<27))
	roundTrip(t, NewInt(-(1<<27)-1))

	huge, _ := new(big.Int).SetString("123456789012345678901234567890123456789012345678901234567890", 10)
	roundTrip(t, NewBigInt(huge))
	roundTrip(t, NewBigInt(new(big.Int).Neg(huge)))

	// a value that requires more than 255 magnitude bytes must take the
	// largeBig tag; 300 bytes of 0xFF comfortably clears that.
	bigBytes := make([]byte, 300)
	for i := range bigBytes {
		bigBytes[i] = 0xFF
	}
	massive := new(big.Int).SetBytes(bigBytes)
	roundTrip(t, NewBigInt(massive))
}

func TestIntegerCanonicalization(t *testing.T) {
	cases := []struct {
		v        int64
		wantTag  byte
	}{
		{0, tagSmallInt},
		{255, tagSmallInt},
		{256, tagInt},
		{-1, tagInt},
		{(1 << 27) - 1, tagInt},
		{-(1 << 27), tagInt},
	}
	for _, c := range cases {
		b := mustEncode(t, NewInt(c.v))
		if b[0] != c.wantTag {
			t.Fatalf("encode(%d) tag = %d, want %d", c.v, b[0], c.wantTag)
		}
	}
	// just past the int window must fall back to a bignum tag.
	b := mustEncode(t, NewInt(1<<27))
	if b[0] != tagSmallBig {
		t.Fatalf("encode(2^27) tag = %d, want smallBig (%d)", b[0], tagSmallBig)
	}
}

func TestRoundTripFloat(t *testing.T) {
	roundTrip(t, Float64(0))
	roundTrip(t, Float64(-3.25))
	roundTrip(t, Float64(1.0/3.0))
}

func TestRoundTripAtom(t *testing.T) {
	roundTrip(t, Atom(""))
	roundTrip(t, Atom("undefined"))
	roundTrip(t, Bool(true))
	roundTrip(t, Bool(false))
}

func TestStringPreference(t *testing.T) {
	latin1 := NewString("hello, world")
	b := mustEncode(t, latin1)
	if b[0] != tagString {
		t.Fatalf("latin1 string encoded with tag %d, want stringTag (%d)", b[0], tagString)
	}
	roundTrip(t, latin1)

	empty := NewString("")
	b = mustEncode(t, empty)
	if !bytes.Equal(b, []byte{tagNil}) {
		t.Fatalf("empty string encoded as % x, want bare nil tag", b)
	}

	wide := ErlString{'h', 'i', 0x4e2d} // contains a code point > 255
	b = mustEncode(t, wide)
	if b[0] != tagList {
		t.Fatalf("wide string encoded with tag %d, want listTag (%d)", b[0], tagList)
	}
	// decoding the list form yields a List of code points, not an
	// ErlString: the wire format can't distinguish the two once the
	// string tag isn't used, matching how the external format itself
	// can't tell a string from a list of small integers.
	decoded, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := decoded.(List); !ok {
		t.Fatalf("decode(encode(wide string)) = %T, want List", decoded)
	}
}

func TestRoundTripBinaryAndBitString(t *testing.T) {
	roundTrip(t, Binary(nil))
	roundTrip(t, Binary([]byte{0, 1, 2, 255}))
	roundTrip(t, BitString{Data: []byte{0xAB, 0xC0}, PadBits: 4})
	roundTrip(t, BitString{})
}

func TestRoundTripTuplesAndLists(t *testing.T) {
	roundTrip(t, Tuple{})
	roundTrip(t, Tuple{NewInt(1), Atom("x"), NewString("y")})

	big := make(Tuple, 300)
	for i := range big {
		big[i] = NewInt(int64(i))
	}
	got := roundTrip(t, big)
	if len(got.(Tuple)) != 300 {
		t.Fatalf("large tuple round trip lost elements: got %d, want 300", len(got.(Tuple)))
	}

	roundTrip(t, List{})
	roundTrip(t, NewList(NewInt(1), NewInt(2), NewInt(3)))
	roundTrip(t, List{Items: []Term{NewInt(1), NewInt(2)}, Tail: NewInt(3)})
}

func TestListProperness(t *testing.T) {
	proper := NewList(NewInt(1), NewInt(2))
	if !proper.IsProper() {
		t.Fatal("NewList should build a proper list")
	}
	decoded := roundTrip(t, proper)
	if !decoded.(List).IsProper() {
		t.Fatal("decode(encode(properList)) lost properness")
	}

	improper := List{Items: []Term{NewInt(1)}, Tail: Atom("rest")}
	if improper.IsProper() {
		t.Fatal("improper list reported as proper")
	}
	decoded = roundTrip(t, improper)
	if decoded.(List).IsProper() {
		t.Fatal("decode(encode(improperList)) reported as proper")
	}
}

func TestRoundTripPidPortRef(t *testing.T) {
	roundTrip(t, Pid{Node: "n@host", ID: 100, Serial: 0, Creation: 1})
	roundTrip(t, Port{Node: "n@host", ID: 7, Creation: 1})
	roundTrip(t, Ref{Node: "n@host", Creation: 1, IDs: []uint32{42}})
	roundTrip(t, Ref{Node: "n@host", Creation: 2, IDs: []uint32{1, 2, 3}})
}

func TestRefInteropEquality(t *testing.T) {
	old := Ref{Node: "n@host", Creation: 1, IDs: []uint32{99}}
	newStyle := Ref{Node: "n@host", Creation: 1, IDs: []uint32{99, 0, 0}}
	if !old.Equal(newStyle) {
		t.Fatal("old- and new-style refs with matching node/creation/first-id should be equal")
	}
	if old.Hash() != newStyle.Hash() {
		t.Fatal("equal refs must hash equal")
	}
}

func TestRoundTripFun(t *testing.T) {
	owner := Pid{Node: "n@host", ID: 1, Serial: 0, Creation: 1}
	oldFun := Fun{
		Pid:      owner,
		Module:   "mymod",
		Index:    3,
		Uniq:     7,
		FreeVars: []Term{NewInt(1), Atom("x")},
	}
	roundTrip(t, oldFun)

	newFun := Fun{
		Pid:      owner,
		Module:   "mymod",
		Index:    3,
		Uniq:     7,
		IsNew:    true,
		Arity:    2,
		OldIndex: 1,
		FreeVars: []Term{NewInt(9)},
	}
	roundTrip(t, newFun)
}

func TestNewFunSizeFieldIsSelfConsistent(t *testing.T) {
	f := Fun{
		Pid:      Pid{Node: "n@host", ID: 1, Creation: 1},
		Module:   "mod",
		IsNew:    true,
		Arity:    1,
		FreeVars: []Term{NewInt(1), NewInt(2), NewString("payload")},
	}
	b := mustEncode(t, f)
	if b[0] != tagNewFun {
		t.Fatalf("tag = %d, want newFun (%d)", b[0], tagNewFun)
	}
	size := uint32(b[1])<<24 | uint32(b[2])<<16 | uint32(b[3])<<8 | uint32(b[4])
	if int(size) != len(b) {
		t.Fatalf("newFun size field = %d, total encoded length = %d", size, len(b))
	}
}

func TestRoundTripExternalFun(t *testing.T) {
	roundTrip(t, ExternalFun{Module: "lists", Function: "reverse", Arity: 1})
}

func TestRoundTripCompressed(t *testing.T) {
	payload := NewList(NewInt(1), NewInt(2), NewInt(3), NewString("repeated repeated repeated"))
	c := Compressed{Inner: payload}
	b := mustEncode(t, c)
	if b[0] != tagCompressed {
		t.Fatalf("tag = %d, want compressed (%d)", b[0], tagCompressed)
	}
	decoded, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !decoded.Equal(payload) {
		t.Fatalf("Compressed.Equal must be transparent to its inner term: got %v", decoded)
	}
	if !decoded.Equal(c) {
		t.Fatalf("Compressed.Equal must also match another Compressed wrapper: got %v", decoded)
	}
}

func TestCompressedNestingLimit(t *testing.T) {
	var term Term = NewInt(42)
	for i := 0; i < maxCompressedNesting+1; i++ {
		term = Compressed{Inner: term}
	}
	b, err := Encode(term)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := Decode(b); err == nil {
		t.Fatal("expected decode to reject nesting past the limit")
	}
}

func TestDecodeAnyRequiresVersionByte(t *testing.T) {
	b, err := EncodeAny(Atom("ok"))
	if err != nil {
		t.Fatalf("EncodeAny: %v", err)
	}
	if b[0] != 131 {
		t.Fatalf("EncodeAny must lead with version byte 131, got %d", b[0])
	}
	decoded, err := DecodeAny(b)
	if err != nil {
		t.Fatalf("DecodeAny: %v", err)
	}
	if !decoded.Equal(Atom("ok")) {
		t.Fatalf("DecodeAny round trip mismatch: got %v", decoded)
	}
	if _, err := DecodeAny(b[1:]); err == nil {
		t.Fatal("DecodeAny should reject input missing the version byte")
	}
}

func TestDecoderSequentialTerms(t *testing.T) {
	// Mirrors how the connection loop pulls a control tuple and its
	// trailing message payload out of one frame: a single version byte
	// covers the whole buffer, and the two terms are decoded back to
	// back from the same Decoder.
	ctrl := Tuple{NewInt(2), Pid{Node: "a@host", ID: 1, Creation: 1}, Atom("proc")}
	msg := Tuple{Atom("hello"), NewInt(1)}

	var buf bytes.Buffer
	buf.WriteByte(131)
	ctrlBytes, err := Encode(ctrl)
	if err != nil {
		t.Fatalf("Encode ctrl: %v", err)
	}
	buf.Write(ctrlBytes)
	msgBytes, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode msg: %v", err)
	}
	buf.Write(msgBytes)

	d := NewDecoder(buf.Bytes())
	version, err := d.readByte()
	if err != nil || version != 131 {
		t.Fatalf("expected leading version byte, got %d err %v", version, err)
	}
	gotCtrl, err := d.Next()
	if err != nil {
		t.Fatalf("decode ctrl: %v", err)
	}
	if !gotCtrl.Equal(ctrl) {
		t.Fatalf("ctrl mismatch: got %v, want %v", gotCtrl, ctrl)
	}
	if d.Remaining() == 0 {
		t.Fatal("expected message bytes still pending after control tuple")
	}
	gotMsg, err := d.Next()
	if err != nil {
		t.Fatalf("decode msg: %v", err)
	}
	if !gotMsg.Equal(msg) {
		t.Fatalf("msg mismatch: got %v, want %v", gotMsg, msg)
	}
	if d.Remaining() != 0 {
		t.Fatalf("expected buffer fully consumed, %d bytes left", d.Remaining())
	}
}

func TestDecodeRejectsUnknownTag(t *testing.T) {
	if _, err := Decode([]byte{0xFE}); err == nil {
		t.Fatal("expected a decode error for an unknown tag")
	}
}

func TestDecodeRejectsTruncatedInput(t *testing.T) {
	full := mustEncode(t, Tuple{NewInt(1), NewInt(2)})
	if _, err := Decode(full[:len(full)-1]); err == nil {
		t.Fatal("expected a decode error for truncated input")
	}
}

func TestAtomLengthLimit(t *testing.T) {
	over := make([]byte, maxAtomLen+1)
	for i := range over {
		over[i] = 'a'
	}
	if _, err := Encode(Atom(over)); err == nil {
		t.Fatal("expected a range error encoding an over-length atom")
	}
}

func TestHashConsistentWithEqual(t *testing.T) {
	a := Tuple{NewInt(1), Atom("x"), NewString("hi")}
	b := Tuple{NewInt(1), Atom("x"), NewString("hi")}
	if !a.Equal(b) {
		t.Fatal("expected structurally identical tuples to be Equal")
	}
	if a.Hash() != b.Hash() {
		t.Fatal("Equal terms must hash equal")
	}

	bin := Binary([]byte{1, 2, 3})
	bits := BitString{Data: []byte{1, 2, 3}, PadBits: 0}
	if bin.Hash() == bits.Hash() {
		t.Fatal("Binary and BitString sharing bytes should hash differently (distinct seeds)")
	}
}

func TestCrossVariantInequality(t *testing.T) {
	listOfInts := NewList(NewInt('h'), NewInt('i'))
	str := NewString("hi")
	if listOfInts.Equal(str) || str.Equal(listOfInts) {
		t.Fatal("a list of code points must never equal a string of the same text")
	}
}
