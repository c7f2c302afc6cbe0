package nodeid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddress_String(t *testing.T) {
	assert.Equal(t, "script.box.add", FromNames("script", "box", "add").String())
	assert.Equal(t, "", FromNames().String())
	assert.Equal(t, "", (*Address)(nil).String())
}

func TestAddress_Equal(t *testing.T) {
	a := FromNames("a", "b")

	assert.True(t, a.Equal(FromNames("a", "b")))
	assert.False(t, a.Equal(FromNames("a", "c")))
	assert.False(t, a.Equal(FromNames("a")))
	assert.False(t, a.Equal(nil))
	assert.False(t, (*Address)(nil).Equal(a))
	assert.True(t, (*Address)(nil).Equal(nil))
}

func TestAddress_Navigation(t *testing.T) {
	full := FromNames("script", "box", "add", "sum")

	assert.Equal(t, "sum", full.Last())
	assert.Equal(t, "script.box.add", full.Parent().String())
	assert.Equal(t, "script.box.add.sum.x", full.Child("x").String())
	assert.Equal(t, "script.box.add.sum", full.String(), "Child does not modify the receiver")
	assert.Equal(t, 0, FromNames().Parent().Len())
	assert.Equal(t, "", FromNames().Last())

	names := full.Names()
	names[0] = "changed"
	assert.Equal(t, "script", full.Names()[0], "Names returns a copy")
}

func TestAddress_Relative(t *testing.T) {
	full := FromNames("script", "box", "add", "sum")

	rel, err := full.Relative(FromNames("script", "box"))
	require.NoError(t, err)
	assert.Equal(t, "add.sum", rel.String())

	self, err := full.Relative(full)
	require.NoError(t, err)
	assert.Equal(t, 0, self.Len())

	_, err = full.Relative(FromNames("script", "other"))
	assert.ErrorContains(t, err, `"script.box.add.sum" is not below "script.other"`)

	assert.True(t, full.HasPrefix(FromNames()))
	assert.False(t, FromNames("script").HasPrefix(full))
}
