package mem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecentSends_SeenWithinTTL(t *testing.T) {
	store := NewRecentSends()

	require.False(t, store.Seen("job-1"))

	store.MarkSent("job-1", time.Minute)
	require.True(t, store.Seen("job-1"))
	require.False(t, store.Seen("job-2"))
}

func TestRecentSends_ExpiredEntryForgotten(t *testing.T) {
	store := NewRecentSends()

	store.MarkSent("job-1", -time.Second)
	require.False(t, store.Seen("job-1"))
}
