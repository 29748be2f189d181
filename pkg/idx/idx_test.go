package idx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("generates unique ids", func(t *testing.T) {
		seen := make(map[ID]struct{}, 1000)
		for i := 0; i < 1000; i++ {
			id := New()
			require.False(t, id.IsZero())
			_, dup := seen[id]
			require.False(t, dup, "duplicate id %s", id)
			seen[id] = struct{}{}
		}
	})

	t.Run("ids sort by time", func(t *testing.T) {
		earlier := NewAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		later := NewAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
		require.Less(t, earlier.String(), later.String())
	})

	t.Run("embedded time round trips", func(t *testing.T) {
		at := time.Date(2024, 6, 15, 12, 30, 0, 0, time.UTC)
		id := NewAt(at)
		require.Equal(t, at.UnixMilli(), id.Time().UnixMilli())
	})
}

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("accepts canonical ulids", func(t *testing.T) {
		id := New()
		parsed, err := Parse(id.String())
		require.NoError(t, err)
		require.Equal(t, id, parsed)
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		for _, bad := range []string{"", " ", "not-a-ulid", "0000"} {
			_, err := Parse(bad)
			require.ErrorIs(t, err, ErrInvalid)
		}
	})
}
