package valuetype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_AsAccessorsMatchKind(t *testing.T) {
	n, ok := Number(3.5).AsNumber()
	assert.True(t, ok)
	assert.Equal(t, 3.5, n)

	_, ok = Number(3.5).AsString()
	assert.False(t, ok)
}

func TestValue_GetOnObject(t *testing.T) {
	obj := Object(map[string]Value{"a": Number(2), "b": String("x")})

	v, ok := obj.Get("a")
	require.True(t, ok)
	n, _ := v.AsNumber()
	assert.Equal(t, float64(2), n)

	_, ok = obj.Get("missing")
	assert.False(t, ok)

	_, ok = Number(1).Get("a")
	assert.False(t, ok, "Get on a non-object must report absent")
}

func TestMerge_OverlayWinsOnKeyCollision(t *testing.T) {
	base := Object(map[string]Value{"a": Number(1), "b": Number(2)})
	overlay := Object(map[string]Value{"b": Number(99), "c": Number(3)})

	merged := Merge(base, overlay)

	a, _ := merged.Get("a")
	b, _ := merged.Get("b")
	c, _ := merged.Get("c")
	av, _ := a.AsNumber()
	bv, _ := b.AsNumber()
	cv, _ := c.AsNumber()
	assert.Equal(t, float64(1), av)
	assert.Equal(t, float64(99), bv)
	assert.Equal(t, float64(3), cv)
}

func TestMerge_NonObjectSidesPassThrough(t *testing.T) {
	assert.Equal(t, Number(1), Merge(String("x"), Number(1)))
	assert.Equal(t, String("y"), Merge(Number(1), String("y")))
}

func TestFromJSON_RoundTripsThroughToJSON(t *testing.T) {
	raw := []byte(`{"a":1,"b":["x","y"],"c":null,"d":true}`)
	v, err := FromJSON(raw)
	require.NoError(t, err)

	out, err := v.ToJSON()
	require.NoError(t, err)

	v2, err := FromJSON(out)
	require.NoError(t, err)
	assert.Equal(t, v, v2)
}

func TestValue_MarshalUnmarshalJSON(t *testing.T) {
	v := Object(map[string]Value{"x": Number(1)})
	data, err := v.MarshalJSON()
	require.NoError(t, err)

	var v2 Value
	require.NoError(t, v2.UnmarshalJSON(data))
	x, _ := v2.Get("x")
	n, _ := x.AsNumber()
	assert.Equal(t, float64(1), n)
}

func TestValue_ToMapOnNonObjectFails(t *testing.T) {
	_, ok := Number(1).ToMap()
	assert.False(t, ok)
}

type decodeTarget struct {
	A int    `mapstructure:"a"`
	B string `mapstructure:"b"`
}

func TestValue_DecodeIntoTypedStruct(t *testing.T) {
	v := Object(map[string]Value{"a": Number(7), "b": String("hello")})

	var out decodeTarget
	require.NoError(t, v.Decode(&out))
	assert.Equal(t, 7, out.A)
	assert.Equal(t, "hello", out.B)
}

func TestValue_DecodeNonObjectErrors(t *testing.T) {
	var out decodeTarget
	err := String("x").Decode(&out)
	assert.Error(t, err)
}
