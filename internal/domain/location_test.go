package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeLocation(t *testing.T) {
	loc, err := DecodeLocation(true, []byte(`{"server_name":"Roll20","join_link":"https://roll20.net/join/1"}`))
	require.NoError(t, err)
	online, ok := loc.(OnlineLocation)
	require.True(t, ok)
	assert.Equal(t, "Roll20", online.ServerName)

	loc, err = DecodeLocation(false, []byte(`{"city":"Malmö","coordinates":{"lat":55.6,"lng":13.0}}`))
	require.NoError(t, err)
	physical, ok := loc.(PhysicalLocation)
	require.True(t, ok)
	assert.Equal(t, "Malmö", physical.City)
	require.NotNil(t, physical.Coordinates)
	assert.InDelta(t, 55.6, physical.Coordinates.Lat, 0.0001)

	loc, err = DecodeLocation(false, nil)
	require.NoError(t, err)
	assert.Equal(t, PhysicalLocation{}, loc)

	_, err = DecodeLocation(true, []byte(`{`))
	assert.Error(t, err)
}

func TestEncodeLocation(t *testing.T) {
	raw, err := EncodeLocation(&PhysicalLocation{City: "Uppsala"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"city":"Uppsala"}`, string(raw))

	raw, err = EncodeLocation(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(raw))
}

func TestValidateLocation(t *testing.T) {
	assert.NoError(t, ValidateLocation(true, nil))
	assert.ErrorIs(t, ValidateLocation(false, nil), ErrMissingCity)
	assert.ErrorIs(t, ValidateLocation(true, PhysicalLocation{City: "Lund"}), ErrLocationMismatch)
	assert.ErrorIs(t, ValidateLocation(false, OnlineLocation{}), ErrLocationMismatch)
	assert.ErrorIs(t, ValidateLocation(false, &PhysicalLocation{City: " "}), ErrMissingCity)
	assert.NoError(t, ValidateLocation(false, &PhysicalLocation{City: "Lund"}))
}

func TestFoldCity(t *testing.T) {
	assert.Equal(t, FoldCity("stockholm"), FoldCity(" STOCKHOLM "))
	assert.NotEqual(t, FoldCity("lund"), FoldCity("lunda"))
}
