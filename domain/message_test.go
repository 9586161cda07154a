package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"estate-chat/errors"
)

func Test_CleanText_rejects_blank_input(t *testing.T) {
	req := require.New(t)

	for _, text := range []string{"", "   ", "\n\t  \n"} {
		_, err := CleanText(text)
		req.ErrorIs(err, errors.ErrEmptyMessage)
	}
}

func Test_CleanText_trims_valid_input(t *testing.T) {
	req := require.New(t)

	cleaned, err := CleanText("  is the apartment still available?  ")
	req.NoError(err)
	req.Equal("is the apartment still available?", cleaned)
}

func Test_Messages_order_by_timestamp_then_id(t *testing.T) {
	req := require.New(t)
	at := time.Now().UTC()

	earlier := Message{ID: uuid.New(), CreatedAt: at}
	later := Message{ID: uuid.New(), CreatedAt: at.Add(time.Second)}
	req.True(earlier.Before(later))
	req.False(later.Before(earlier))

	// Same timestamp: the id breaks the tie, consistently.
	low := Message{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), CreatedAt: at}
	high := Message{ID: uuid.MustParse("ffffffff-0000-0000-0000-000000000001"), CreatedAt: at}
	req.True(low.Before(high))
	req.False(high.Before(low))
}
