package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewULIDIsUniqueAndSortable(t *testing.T) {
	a := NewULID()
	time.Sleep(2 * time.Millisecond)
	b := NewULID()

	assert.NotEqual(t, a, b)
	assert.Less(t, a.String(), b.String(), "later ULIDs sort after earlier ones")
	assert.Len(t, a.String(), 26)
}

func TestParseULIDRoundTrip(t *testing.T) {
	id := NewULID()
	parsed, err := ParseULID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseULID("not-a-ulid")
	assert.Error(t, err)
}

func TestULIDIsZero(t *testing.T) {
	var zero ULID
	assert.True(t, zero.IsZero())
	assert.False(t, NewULID().IsZero())
}

func TestULIDDatabaseValue(t *testing.T) {
	id := NewULID()
	v, err := id.Value()
	require.NoError(t, err)
	assert.Equal(t, id.String(), v)

	var zero ULID
	v, err = zero.Value()
	require.NoError(t, err)
	assert.Nil(t, v, "zero id stores as NULL")
}

func TestULIDScan(t *testing.T) {
	id := NewULID()

	var fromString ULID
	require.NoError(t, fromString.Scan(id.String()))
	assert.Equal(t, id, fromString)

	var fromBytes ULID
	require.NoError(t, fromBytes.Scan([]byte(id.String())))
	assert.Equal(t, id, fromBytes)

	var fromNil ULID
	require.NoError(t, fromNil.Scan(nil))
	assert.True(t, fromNil.IsZero())

	var fromEmpty ULID
	require.NoError(t, fromEmpty.Scan(""))
	assert.True(t, fromEmpty.IsZero())

	var bad ULID
	assert.Error(t, bad.Scan(42))
	assert.Error(t, bad.Scan("nope"))
}

func TestULIDJSON(t *testing.T) {
	id := NewULID()

	data, err := json.Marshal(id)
	require.NoError(t, err)
	assert.Equal(t, `"`+id.String()+`"`, string(data))

	var back ULID
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, id, back)

	var null ULID
	require.NoError(t, json.Unmarshal([]byte("null"), &null))
	assert.True(t, null.IsZero())

	data, err = json.Marshal(null)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	assert.Error(t, json.Unmarshal([]byte(`"bad"`), &back))
}

func TestBaseModelBeforeCreateAssignsID(t *testing.T) {
	var m BaseModel
	require.NoError(t, m.BeforeCreate(nil))
	assert.False(t, m.ID.IsZero())

	want := m.ID
	require.NoError(t, m.BeforeCreate(nil))
	assert.Equal(t, want, m.ID, "existing id is kept")
}
