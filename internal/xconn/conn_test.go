package xconn

import (
	"testing"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/stretchr/testify/assert"
)

func TestAtomsEncoding(t *testing.T) {
	atoms := []Atom{AtomAtom, 0x1234, 0xdeadbeef}
	data := EncodeAtoms(atoms)
	assert.Len(t, data, 12)
	// X11 data travels in the connection's byte order; xgb uses little endian.
	assert.Equal(t, []byte{4, 0, 0, 0}, data[:4])
	assert.Equal(t, atoms, DecodeAtoms(data))

	assert.Equal(t, atoms[:2], DecodeAtoms(data[:10]), "partial word is dropped")
	assert.Empty(t, DecodeAtoms(nil))
}

func TestCard32(t *testing.T) {
	v, ok := DecodeCard32(EncodeCard32(300_000))
	assert.True(t, ok)
	assert.Equal(t, uint32(300_000), v)

	_, ok = DecodeCard32([]byte{1, 2, 3})
	assert.False(t, ok)
}

func TestErrorEventWindow(t *testing.T) {
	ev := errorEvent(xproto.WindowError{NiceName: "Window", BadValue: 0x600001})
	assert.Equal(t, Window(0x600001), ev.Window)
	assert.ErrorAs(t, ev.Err, new(xproto.WindowError))

	ev = errorEvent(xproto.AtomError{NiceName: "Atom", BadValue: 0x600001})
	assert.Equal(t, Window(None), ev.Window)
}
