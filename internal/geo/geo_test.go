package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundsValidate(t *testing.T) {
	tests := []struct {
		name string
		b    Bounds
		ok   bool
	}{
		{"ordinary", Bounds{South: 45.1, West: -122.9, North: 45.2, East: -122.8}, true},
		{"world", Bounds{South: -90, West: -180, North: 90, East: 180}, true},
		{"point", Bounds{South: 1, West: 2, North: 1, East: 2}, true},
		{"projected meters", Bounds{South: 5000000, West: 500000, North: 5001000, East: 501000}, false},
		{"latitude too small", Bounds{South: -91, West: 0, North: 0, East: 1}, false},
		{"inverted latitude", Bounds{South: 10, West: 0, North: 5, East: 1}, false},
		{"inverted longitude", Bounds{South: 0, West: 10, North: 1, East: 5}, false},
		{"nan", Bounds{South: math.NaN(), West: 0, North: 1, East: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.b.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidBounds))
		})
	}
}

func TestUnionAllAndCenter(t *testing.T) {
	_, ok := UnionAll(nil)
	assert.False(t, ok)

	u, ok := UnionAll([]Bounds{
		{South: 10, West: 20, North: 11, East: 21},
		{South: 9, West: 20.5, North: 10.5, East: 23},
	})
	require.True(t, ok)
	assert.Equal(t, Bounds{South: 9, West: 20, North: 11, East: 23}, u)
	assert.Equal(t, LatLng{Lat: 10, Lng: 21.5}, u.Center())
}

func TestLeafletPairRoundTrip(t *testing.T) {
	b := Bounds{South: 1, West: 2, North: 3, East: 4}
	p := b.LeafletPair()
	assert.Equal(t, [2][2]float64{{1, 2}, {3, 4}}, p)
	assert.Equal(t, b, BoundsFromLeafletPair(p))
	assert.Equal(t, b, BoundsFromOrb(b.Orb()))
}

func TestBoundsFromRing(t *testing.T) {
	b, err := BoundsFromRing([][]float64{
		{-122.9, 45.2}, {-122.8, 45.2}, {-122.8, 45.1}, {-122.9, 45.1}, {-122.9, 45.2},
	})
	require.NoError(t, err)
	assert.Equal(t, Bounds{South: 45.1, West: -122.9, North: 45.2, East: -122.8}, b)

	_, err = BoundsFromRing(nil)
	assert.ErrorIs(t, err, ErrInvalidBounds)
	_, err = BoundsFromRing([][]float64{{1}})
	assert.ErrorIs(t, err, ErrInvalidBounds)
}
