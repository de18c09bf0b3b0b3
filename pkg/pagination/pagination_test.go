package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type row struct {
	id        uuid.UUID
	createdAt time.Time
}

func rowKey(r row) Cursor { return Cursor{CreatedAt: r.createdAt, ID: r.id} }

func TestCursorSurvivesQueryString(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 3, 1, 9, 30, 0, 123456789, time.UTC), ID: uuid.New()}
	token := in.Encode()
	require.NotContains(t, token, "+")
	require.NotContains(t, token, "/")
	require.NotContains(t, token, "=")

	out, err := ParseCursor(token)
	require.NoError(t, err)
	require.True(t, in.CreatedAt.Equal(out.CreatedAt))
	require.Equal(t, in.ID, out.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	for _, token := range []string{
		"not base64!",
		base64.RawURLEncoding.EncodeToString([]byte("no-separator")),
		base64.RawURLEncoding.EncodeToString([]byte("yesterday|" + uuid.NewString())),
		base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano) + "|" + uuid.Nil.String())),
	} {
		_, err := ParseCursor(token)
		require.ErrorIs(t, err, errMalformedCursor, token)
	}

	cursor, err := ParseCursor("  ")
	require.NoError(t, err)
	require.Nil(t, cursor)
}

func TestTrimReturnsNextCursorOnlyWhenMoreRows(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := []row{
		{uuid.New(), base.Add(3 * time.Minute)},
		{uuid.New(), base.Add(2 * time.Minute)},
		{uuid.New(), base.Add(time.Minute)},
	}

	page, next := Trim(rows, 2, rowKey)
	require.Len(t, page, 2)
	require.NotNil(t, next)
	require.Equal(t, rows[1].id, next.ID)

	page, next = Trim(rows[:2], 2, rowKey)
	require.Len(t, page, 2)
	require.Nil(t, next)
}

func TestNormalizeLimitBounds(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
	require.Equal(t, 7, NormalizeLimit(7))
}
