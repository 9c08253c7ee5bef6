package subdict_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/matchkit/pkg/subdict"
)

const growKeyCount = 1000

func TestInsert_EmptyKey(t *testing.T) {
	t.Parallel()

	d := subdict.New[int]()

	_, err := d.Insert("", 1, subdict.FailOnExisting)
	assert.ErrorIs(t, err, subdict.ErrEmptyKey)
}

func TestInsertAndTryGet_ByRegion(t *testing.T) {
	t.Parallel()

	d := subdict.New[string]()

	_, err := d.Insert("needle", "found", subdict.FailOnExisting)
	require.NoError(t, err)

	buf := "haystack needle haystack"

	v, ok, err := d.TryGet(buf, 9, 6)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "found", v)

	// A shifted region with different contents misses.
	_, ok, err = d.TryGet(buf, 8, 6)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInsert_DuplicatePolicies(t *testing.T) {
	t.Parallel()

	t.Run("fail_on_existing", func(t *testing.T) {
		t.Parallel()

		d := subdict.New[int]()

		_, err := d.Insert("key", 1, subdict.FailOnExisting)
		require.NoError(t, err)

		modified, err := d.Insert("key", 2, subdict.FailOnExisting)
		assert.ErrorIs(t, err, subdict.ErrDuplicateKey)
		assert.False(t, modified)
		assert.Equal(t, 1, d.Len())
	})

	t.Run("overwrite_existing", func(t *testing.T) {
		t.Parallel()

		d := subdict.New[int]()

		_, err := d.Insert("key", 1, subdict.FailOnExisting)
		require.NoError(t, err)

		modified, err := d.Insert("key", 2, subdict.OverwriteExisting)
		require.NoError(t, err)
		assert.True(t, modified)

		v, ok, err := d.TryGet("key", 0, 3)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 2, v)
		assert.Equal(t, 1, d.Len())
	})

	t.Run("skip_existing", func(t *testing.T) {
		t.Parallel()

		d := subdict.New[int]()

		_, err := d.Insert("key", 1, subdict.FailOnExisting)
		require.NoError(t, err)

		modified, err := d.Insert("key", 2, subdict.SkipExisting)
		require.NoError(t, err)
		assert.False(t, modified)

		v, _, err := d.TryGet("key", 0, 3)
		require.NoError(t, err)
		assert.Equal(t, 1, v)
	})
}

func TestRemove(t *testing.T) {
	t.Parallel()

	d := subdict.New[int]()

	_, err := d.Insert("alpha", 1, subdict.FailOnExisting)
	require.NoError(t, err)

	_, err = d.Insert("beta", 2, subdict.FailOnExisting)
	require.NoError(t, err)

	removed, err := d.Remove("alpha", 0, 5)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, 1, d.Len())

	_, ok, err := d.TryGet("alpha", 0, 5)
	require.NoError(t, err)
	assert.False(t, ok)

	// The other entry stays reachable past the tombstone.
	v, ok, err := d.TryGet("beta", 0, 4)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, v)

	removed, err = d.Remove("alpha", 0, 5)
	require.NoError(t, err)
	assert.False(t, removed)

	// A removed key can be inserted again.
	_, err = d.Insert("alpha", 3, subdict.FailOnExisting)
	require.NoError(t, err)

	v, ok, err = d.TryGet("alpha", 0, 5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestRegionValidation(t *testing.T) {
	t.Parallel()

	d := subdict.New[int]()

	tests := []struct {
		name   string
		offset int
		length int
	}{
		{"negative_offset", -1, 2},
		{"negative_length", 0, -1},
		{"offset_past_end", 10, 1},
		{"length_past_end", 2, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := d.TryGet("buffer", tt.offset, tt.length)
			assert.ErrorIs(t, err, subdict.ErrOutOfRange)

			_, err = d.Remove("buffer", tt.offset, tt.length)
			assert.ErrorIs(t, err, subdict.ErrOutOfRange)
		})
	}

	t.Run("empty_region_misses", func(t *testing.T) {
		t.Parallel()

		_, ok, err := d.TryGet("buffer", 3, 0)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestGrowth_KeepsAllEntries(t *testing.T) {
	t.Parallel()

	d := subdict.New[int]()
	keys := make([]string, growKeyCount)

	for i := range growKeyCount {
		keys[i] = fmt.Sprintf("key-%04d", i)

		modified, err := d.Insert(keys[i], i, subdict.FailOnExisting)
		require.NoError(t, err)
		require.True(t, modified)
	}

	require.Equal(t, growKeyCount, d.Len())

	for i, key := range keys {
		v, ok, err := d.TryGet(key, 0, len(key))
		require.NoError(t, err)
		require.True(t, ok, key)
		require.Equal(t, i, v)
	}
}

func TestRemoveAndReinsert_ManyTimes(t *testing.T) {
	t.Parallel()

	// Tombstone churn must not lose entries or break probe chains.
	d := subdict.New[int]()

	for round := range 10 {
		for i := range 100 {
			key := fmt.Sprintf("churn-%d", i)

			_, err := d.Insert(key, round, subdict.OverwriteExisting)
			require.NoError(t, err)
		}

		for i := 0; i < 100; i += 2 {
			key := fmt.Sprintf("churn-%d", i)

			removed, err := d.Remove(key, 0, len(key))
			require.NoError(t, err)
			require.True(t, removed)
		}

		for i := 1; i < 100; i += 2 {
			key := fmt.Sprintf("churn-%d", i)

			v, ok, err := d.TryGet(key, 0, len(key))
			require.NoError(t, err)
			require.True(t, ok, key)
			require.Equal(t, round, v)
		}

		for i := 0; i < 100; i += 2 {
			key := fmt.Sprintf("churn-%d", i)

			_, err := d.Insert(key, round, subdict.FailOnExisting)
			require.NoError(t, err)
		}
	}

	assert.Equal(t, 100, d.Len())
}

func TestSeed_InstancesLookUpIndependently(t *testing.T) {
	t.Parallel()

	// The seed is instance-scoped; two dictionaries still agree on lookups
	// because the seed only perturbs slot placement.
	a := subdict.New[int]()
	b := subdict.New[int]()

	_, err := a.Insert("shared", 1, subdict.FailOnExisting)
	require.NoError(t, err)

	_, err = b.Insert("shared", 2, subdict.FailOnExisting)
	require.NoError(t, err)

	va, ok, err := a.TryGet("shared", 0, 6)
	require.NoError(t, err)
	require.True(t, ok)

	vb, ok, err := b.TryGet("shared", 0, 6)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, 1, va)
	assert.Equal(t, 2, vb)
}
