package hashing

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Size is the length of a Hash in bytes.
const Size = sha256.Size

// Hash is a structural digest. Identical hashes imply identical results.
type Hash [Size]byte

// Zero is the designated "no-op" hash.
var Zero Hash

// IsZero reports whether h is the no-op hash.
func (h Hash) IsZero() bool {
	return h == Zero
}

// String returns the hex encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 12 hex characters, for log output.
func (h Hash) Short() string {
	return h.String()[:12]
}

// Builder accumulates fields into a Hash.
type Builder struct {
	h     hash.Hash
	count int
}

// New creates an empty Builder.
func New() *Builder {
	return &Builder{h: sha256.New()}
}

func (b *Builder) writeField(tag byte, data []byte) *Builder {
	var prefix [9]byte
	prefix[0] = tag
	binary.BigEndian.PutUint64(prefix[1:], uint64(len(data)))
	b.h.Write(prefix[:])
	b.h.Write(data)
	b.count++
	return b
}

// String appends a string field.
func (b *Builder) String(s string) *Builder {
	return b.writeField('s', []byte(s))
}

// Bytes appends a raw byte field.
func (b *Builder) Bytes(p []byte) *Builder {
	return b.writeField('b', p)
}

// Int appends an integer field.
func (b *Builder) Int(i int64) *Builder {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(i))
	return b.writeField('i', buf[:])
}

// Float appends a floating point field.
func (b *Builder) Float(f float64) *Builder {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(f))
	return b.writeField('f', buf[:])
}

// Bool appends a boolean field.
func (b *Builder) Bool(v bool) *Builder {
	if v {
		return b.writeField('t', nil)
	}
	return b.writeField('n', nil)
}

// Hash appends another digest.
func (b *Builder) Hash(h Hash) *Builder {
	return b.writeField('h', h[:])
}

// Value appends a cty value together with its type. Values that cannot be
// encoded (unknown or capsule values) contribute their type and a marker only.
func (b *Builder) Value(v cty.Value) *Builder {
	if v == cty.NilVal {
		return b.writeField('0', nil)
	}
	ty := v.Type()
	if typeJSON, err := ctyjson.MarshalType(ty); err == nil {
		b.writeField('T', typeJSON)
	} else {
		b.writeField('T', []byte(ty.FriendlyName()))
	}
	if !v.IsWhollyKnown() {
		return b.writeField('?', nil)
	}
	if v.IsNull() {
		return b.writeField('0', nil)
	}
	data, err := ctyjson.Marshal(v, ty)
	if err != nil {
		return b.writeField('?', []byte(err.Error()))
	}
	return b.writeField('v', data)
}

// Len returns the number of fields appended so far.
func (b *Builder) Len() int {
	return b.count
}

// Sum returns the digest of everything appended so far. The Builder remains
// usable. An empty Builder still yields a non-zero Hash.
func (b *Builder) Sum() Hash {
	var out Hash
	copy(out[:], b.h.Sum(nil))
	return out
}

// Of is a shorthand that hashes the given strings in order.
func Of(fields ...string) Hash {
	b := New()
	for _, f := range fields {
		b.String(f)
	}
	return b.Sum()
}
