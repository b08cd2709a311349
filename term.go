package ern

import (
	"fmt"
	"math/big"
	"strings"
)

// Term is the closed sum type every Erlang external-format value
// implements. Equality is deep and type-strict: a List of small
// integers never equals an ErlString even when they denote the same
// text, because the external format itself preserves that distinction.
//
// Hash is consistent with Equal and stable across processes; it does
// not depend on map iteration order, pointer identity, or anything
// else that would vary between runs.
type Term interface {
	Equal(other Term) bool
	Hash() uint64
	String() string

	// unexported marker keeps Term a closed sum type: only the variants
	// declared in this file can implement it.
	isTerm()
}

// Per-variant hash seeds. Keeping these distinct means two structurally
// identical payloads from different variants (e.g. a Binary and a
// BitString with zero pad bits holding the same bytes) hash differently.
const (
	seedInt uint64 = 0x9e3779b97f4a7c15 + iota
	seedFloat
	seedAtom
	seedString
	seedBinary
	seedBitString
	seedTuple
	seedList
	seedPid
	seedPort
	seedRef
	seedFun
	seedExternalFun
	seedCompressed
)

// mix63 is a 64-bit adaptation of Bob Jenkins' lookup3 mixing function.
// It is used as the finalizer for every Term's Hash implementation, per
// the "three-word Bob-Jenkins-style mix" the term model requires.
func mix63(a, b, c uint64) uint64 {
	a -= b
	a -= c
	a ^= c >> 43
	b -= c
	b -= a
	b ^= a << 9
	c -= a
	c -= b
	c ^= b >> 8
	a -= b
	a -= c
	a ^= c >> 38
	b -= c
	b -= a
	b ^= a << 23
	c -= a
	c -= b
	c ^= b >> 5
	a -= b
	a -= c
	a ^= c >> 35
	b -= c
	b -= a
	b ^= a << 49
	c -= a
	c -= b
	c ^= b >> 11
	a -= b
	a -= c
	a ^= c >> 12
	b -= c
	b -= a
	b ^= a << 18
	c -= a
	c -= b
	c ^= b >> 22
	return c
}

func hashBytes(seed uint64, b []byte) uint64 {
	a, bb, c := seed, uint64(len(b)), uint64(0x517cc1b727220a95)
	for i := 0; i < len(b); i += 8 {
		var chunk uint64
		for j := 0; j < 8 && i+j < len(b); j++ {
			chunk |= uint64(b[i+j]) << (8 * j)
		}
		a = mix63(a, chunk, c)
		c++
	}
	return mix63(a, bb, c)
}

// Int is an arbitrary-precision signed integer. small caches whether
// the value currently fits in an int64, so callers on the fast path
// (the overwhelming majority of terms exchanged on a live connection)
// don't have to round-trip through big.Int.
type Int struct {
	big   *big.Int
	small int64
	isBig bool
}

// NewInt wraps a machine-width integer.
func NewInt(v int64) Int { return Int{small: v} }

// NewBigInt wraps an arbitrary-precision integer.
func NewBigInt(v *big.Int) Int {
	if v.IsInt64() {
		return Int{small: v.Int64()}
	}
	return Int{big: new(big.Int).Set(v), isBig: true}
}

func (i Int) isTerm() {}

// AsBig returns the value as a *big.Int regardless of representation.
func (i Int) AsBig() *big.Int {
	if i.isBig {
		return i.big
	}
	return big.NewInt(i.small)
}

// Int64 returns the value and whether it fit without loss.
func (i Int) Int64() (int64, bool) {
	if i.isBig {
		return 0, false
	}
	return i.small, true
}

func (i Int) Equal(other Term) bool {
	o, ok := other.(Int)
	if !ok {
		return false
	}
	if !i.isBig && !o.isBig {
		return i.small == o.small
	}
	return i.AsBig().Cmp(o.AsBig()) == 0
}

func (i Int) Hash() uint64 {
	return hashBytes(seedInt, i.AsBig().Bytes())
}

func (i Int) String() string { return i.AsBig().String() }

// Float64 is an IEEE-754 double.
type Float64 float64

func (f Float64) isTerm() {}
func (f Float64) Equal(other Term) bool {
	o, ok := other.(Float64)
	return ok && f == o
}
func (f Float64) Hash() uint64 {
	return mix63(seedFloat, uint64(float64(f)*1e9), 0)
}
func (f Float64) String() string { return fmt.Sprintf("%g", float64(f)) }

// Atom is an interned-by-value Latin-1 symbolic constant, at most 255
// bytes long.
type Atom string

func (a Atom) isTerm() {}
func (a Atom) Equal(other Term) bool {
	o, ok := other.(Atom)
	return ok && a == o
}
func (a Atom) Hash() uint64  { return hashBytes(seedAtom, []byte(a)) }
func (a Atom) String() string { return string(a) }

// Bool constructs the atom synonym for a boolean.
func Bool(b bool) Atom {
	if b {
		return Atom("true")
	}
	return Atom("false")
}

// ErlString is a Unicode code-point sequence. It is encoded as a
// byte-string when every code point fits in a byte and the length is
// within the string-tag limit; otherwise as a list of integers. This
// variant exists specifically so a List of code points and a String of
// the same text never compare equal, per the term model's contract.
type ErlString []rune

func NewString(s string) ErlString { return ErlString([]rune(s)) }

func (s ErlString) isTerm() {}
func (s ErlString) Equal(other Term) bool {
	o, ok := other.(ErlString)
	if !ok || len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}
func (s ErlString) Hash() uint64 {
	b := make([]byte, 0, len(s)*2)
	for _, r := range s {
		b = append(b, byte(r), byte(r>>8))
	}
	return hashBytes(seedString, b)
}
func (s ErlString) String() string { return string([]rune(s)) }

// fitsByteString reports whether s can use the compact byte-string
// encoding: every code point must be <= 255 and the length must fit
// the tag's 16-bit length field.
func (s ErlString) fitsByteString() bool {
	if len(s) > 65535 {
		return false
	}
	for _, r := range s {
		if r > 255 {
			return false
		}
	}
	return true
}

// Binary is an arbitrary byte sequence.
type Binary []byte

func (b Binary) isTerm() {}
func (b Binary) Equal(other Term) bool {
	o, ok := other.(Binary)
	return ok && string(b) == string(o)
}
func (b Binary) Hash() uint64  { return hashBytes(seedBinary, b) }
func (b Binary) String() string { return fmt.Sprintf("<<% x>>", []byte(b)) }

// BitString is a byte sequence plus a count of unused low-order bits
// in the last byte. PadBits must be 0..7, and must be 0 when Data is
// empty; the unused bits themselves must be zero.
type BitString struct {
	Data    []byte
	PadBits uint8
}

func (b BitString) isTerm() {}
func (b BitString) Equal(other Term) bool {
	o, ok := other.(BitString)
	return ok && b.PadBits == o.PadBits && string(b.Data) == string(o.Data)
}
func (b BitString) Hash() uint64 {
	return hashBytes(seedBitString, append(append([]byte{}, b.Data...), b.PadBits))
}
func (b BitString) String() string {
	return fmt.Sprintf("<<% x:%d>>", b.Data, b.PadBits)
}

// Tuple is a fixed-arity ordered sequence of terms.
type Tuple []Term

func (t Tuple) isTerm() {}
func (t Tuple) Equal(other Term) bool {
	o, ok := other.(Tuple)
	if !ok || len(t) != len(o) {
		return false
	}
	for i := range t {
		if !t[i].Equal(o[i]) {
			return false
		}
	}
	return true
}
func (t Tuple) Hash() uint64 {
	h := seedTuple
	for i, e := range t {
		h = mix63(h, e.Hash(), uint64(i))
	}
	return h
}
func (t Tuple) String() string {
	parts := make([]string, len(t))
	for i, e := range t {
		parts[i] = e.String()
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// List is an ordered sequence of terms with an optional tail. A nil Tail
// denotes a proper list; any non-nil Tail makes it an improper list.
type List struct {
	Items []Term
	Tail  Term
}

// NewList builds a proper list.
func NewList(items ...Term) List { return List{Items: items} }

func (l List) isTerm() {}

// IsProper reports whether the list's tail is nil, the proper-list
// convention this model uses throughout.
func (l List) IsProper() bool { return l.Tail == nil }

func (l List) Equal(other Term) bool {
	o, ok := other.(List)
	if !ok || len(l.Items) != len(o.Items) {
		return false
	}
	for i := range l.Items {
		if !l.Items[i].Equal(o.Items[i]) {
			return false
		}
	}
	if l.Tail == nil || o.Tail == nil {
		return l.Tail == nil && o.Tail == nil
	}
	return l.Tail.Equal(o.Tail)
}
func (l List) Hash() uint64 {
	h := seedList
	for i, e := range l.Items {
		h = mix63(h, e.Hash(), uint64(i))
	}
	if l.Tail != nil {
		h = mix63(h, l.Tail.Hash(), 0xFFFFFFFF)
	}
	return h
}
func (l List) String() string {
	parts := make([]string, len(l.Items))
	for i, e := range l.Items {
		parts[i] = e.String()
	}
	if l.Tail == nil {
		return "[" + strings.Join(parts, ",") + "]"
	}
	return "[" + strings.Join(parts, ",") + "|" + l.Tail.String() + "]"
}

// Nth returns a lightweight view of the list starting at index n: it
// shares the parent's backing slice rather than copying it, matching
// the "getNthTail" contract of the term model.
func (l List) Nth(n int) List {
	if n >= len(l.Items) {
		return List{Tail: l.Tail}
	}
	return List{Items: l.Items[n:], Tail: l.Tail}
}

// Pid identifies a process: the node it lives on, a 15-bit id, a
// 13-bit serial, and a 2-bit creation counter.
type Pid struct {
	Node     Atom
	ID       uint32 // 15 bits significant
	Serial   uint32 // 13 bits significant
	Creation uint32 // 2 bits significant (new-style pids allow wider, masked on encode)
}

func (p Pid) isTerm() {}
func (p Pid) Equal(other Term) bool {
	o, ok := other.(Pid)
	return ok && p.Node == o.Node && p.ID == o.ID && p.Serial == o.Serial && p.Creation == o.Creation
}
func (p Pid) Hash() uint64 {
	return mix63(mix63(seedPid, p.Node.Hash(), uint64(p.ID)), uint64(p.Serial), uint64(p.Creation))
}
func (p Pid) String() string {
	return fmt.Sprintf("<%s.%d.%d>", p.Node, p.ID, p.Serial)
}

// Port identifies a port: the node it lives on, a 28-bit id, and a
// 2-bit creation counter.
type Port struct {
	Node     Atom
	ID       uint32 // 28 bits significant
	Creation uint32 // 2 bits significant
}

func (p Port) isTerm() {}
func (p Port) Equal(other Term) bool {
	o, ok := other.(Port)
	return ok && p.Node == o.Node && p.ID == o.ID && p.Creation == o.Creation
}
func (p Port) Hash() uint64 {
	return mix63(mix63(seedPort, p.Node.Hash(), uint64(p.ID)), uint64(p.Creation), 0)
}
func (p Port) String() string { return fmt.Sprintf("#Port<%s.%d>", p.Node, p.ID) }

// Ref is a unique token scoped to a node. Old-style refs carry one id
// word, new-style refs carry up to three. Per the interop rule in
// §4.1, two refs are equal if node, creation, and the first id word
// match — regardless of how many id words either side carries.
type Ref struct {
	Node     Atom
	Creation uint32
	IDs      []uint32 // 1 to 3 words; first word is 18 bits significant
}

func (r Ref) isTerm() {}
func (r Ref) Equal(other Term) bool {
	o, ok := other.(Ref)
	if !ok || r.Node != o.Node || r.Creation != o.Creation {
		return false
	}
	if len(r.IDs) == 0 || len(o.IDs) == 0 {
		return len(r.IDs) == len(o.IDs)
	}
	if r.IDs[0] != o.IDs[0] {
		return false
	}
	// If both are new-style (3 words), all three must match for full
	// equality; the node/creation/first-id rule alone governs
	// old-vs-new comparisons.
	if len(r.IDs) == 3 && len(o.IDs) == 3 {
		return r.IDs[1] == o.IDs[1] && r.IDs[2] == o.IDs[2]
	}
	return true
}
func (r Ref) Hash() uint64 {
	// Hash is defined only over node/creation/first-id so that two refs
	// that Equal() also collide in Hash(), as required.
	first := uint32(0)
	if len(r.IDs) > 0 {
		first = r.IDs[0]
	}
	return mix63(mix63(seedRef, r.Node.Hash(), uint64(r.Creation)), uint64(first), 0)
}
func (r Ref) String() string { return fmt.Sprintf("#Ref<%s.%v>", r.Node, r.IDs) }

// Fun is a closure value: either a local fun (identified by owning pid,
// module, index, uniq, and captured free variables) or a "new fun"
// which additionally carries arity, an md5 of the function's code, and
// the pre-new_fun index for compatibility.
type Fun struct {
	Pid      Pid
	Module   Atom
	Index    uint32
	Uniq     uint32
	FreeVars []Term

	// NewFun fields; IsNew distinguishes the two encodings.
	IsNew    bool
	Arity    uint8
	MD5      [16]byte
	OldIndex uint32
}

func (f Fun) isTerm() {}
func (f Fun) Equal(other Term) bool {
	o, ok := other.(Fun)
	if !ok || f.IsNew != o.IsNew {
		return false
	}
	if !f.Pid.Equal(o.Pid) || f.Module != o.Module || f.Index != o.Index || f.Uniq != o.Uniq {
		return false
	}
	if f.IsNew && (f.Arity != o.Arity || f.MD5 != o.MD5 || f.OldIndex != o.OldIndex) {
		return false
	}
	if len(f.FreeVars) != len(o.FreeVars) {
		return false
	}
	for i := range f.FreeVars {
		if !f.FreeVars[i].Equal(o.FreeVars[i]) {
			return false
		}
	}
	return true
}
func (f Fun) Hash() uint64 {
	h := mix63(seedFun, f.Module.Hash(), uint64(f.Index))
	h = mix63(h, uint64(f.Uniq), uint64(len(f.FreeVars)))
	return h
}
func (f Fun) String() string {
	return fmt.Sprintf("#Fun<%s.%d.%d>", f.Module, f.Index, f.Uniq)
}

// ExternalFun is a bare {module, function, arity} capture.
type ExternalFun struct {
	Module   Atom
	Function Atom
	Arity    uint8
}

func (e ExternalFun) isTerm() {}
func (e ExternalFun) Equal(other Term) bool {
	o, ok := other.(ExternalFun)
	return ok && e.Module == o.Module && e.Function == o.Function && e.Arity == o.Arity
}
func (e ExternalFun) Hash() uint64 {
	return mix63(mix63(seedExternalFun, e.Module.Hash(), e.Function.Hash()), uint64(e.Arity), 0)
}
func (e ExternalFun) String() string {
	return fmt.Sprintf("fun %s:%s/%d", e.Module, e.Function, e.Arity)
}

// Compressed wraps a term that should be (or was) deflate-compressed on
// the wire. It is transparent to Equal/Hash/String, which all delegate
// to the wrapped term, since compression is purely a wire-format
// choice and must not be observable to callers comparing decoded terms.
type Compressed struct {
	Inner Term
}

func (c Compressed) isTerm() {}
func (c Compressed) Equal(other Term) bool {
	if o, ok := other.(Compressed); ok {
		return c.Inner.Equal(o.Inner)
	}
	return c.Inner.Equal(other)
}
func (c Compressed) Hash() uint64  { return c.Inner.Hash() }
func (c Compressed) String() string { return c.Inner.String() }
