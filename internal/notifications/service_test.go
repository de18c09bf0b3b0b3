package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/pagination"
)

type fakeRepository struct {
	rows      []models.Notification
	next      *pagination.Cursor
	unread    int64
	outcome   markOutcome
	err       error
	lastQuery listNotificationsParams
	markedAt  time.Time
}

func (f *fakeRepository) WithTx(*gorm.DB) Repository { return f }

func (f *fakeRepository) Create(context.Context, *models.Notification) error { return f.err }

func (f *fakeRepository) List(_ context.Context, params listNotificationsParams) ([]models.Notification, *pagination.Cursor, error) {
	f.lastQuery = params
	return f.rows, f.next, f.err
}

func (f *fakeRepository) CountUnread(context.Context, uuid.UUID) (int64, error) {
	return f.unread, f.err
}

func (f *fakeRepository) MarkRead(_ context.Context, _, _ uuid.UUID, now time.Time) (markOutcome, error) {
	f.markedAt = now
	return f.outcome, f.err
}

func (f *fakeRepository) MarkAllRead(_ context.Context, _ uuid.UUID, now time.Time) (int64, error) {
	f.markedAt = now
	return f.unread, f.err
}

func (f *fakeRepository) DeleteReadBefore(context.Context, time.Time) (int64, error) {
	return 0, f.err
}

func newTestService(t *testing.T, repo Repository) *service {
	t.Helper()
	svc, err := NewService(repo)
	require.NoError(t, err)
	s := svc.(*service)
	s.now = func() time.Time { return time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC) }
	return s
}

func TestListReturnsCursorAndUnreadTotal(t *testing.T) {
	first := models.Notification{ID: uuid.New(), CreatedAt: time.Now()}
	orderID := uuid.New()
	repo := &fakeRepository{
		rows:   []models.Notification{first},
		next:   &pagination.Cursor{CreatedAt: first.CreatedAt, ID: first.ID},
		unread: 4,
	}

	result, err := newTestService(t, repo).List(context.Background(), ListParams{UserID: uuid.New(), OrderID: &orderID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	require.EqualValues(t, 4, result.UnreadCount)
	require.Equal(t, 1, repo.lastQuery.Limit)
	require.Equal(t, &orderID, repo.lastQuery.OrderID)

	decoded, err := pagination.ParseCursor(result.Cursor)
	require.NoError(t, err)
	require.Equal(t, first.ID, decoded.ID)
}

func TestListRejectsBadInput(t *testing.T) {
	svc := newTestService(t, &fakeRepository{})

	_, err := svc.List(context.Background(), ListParams{UserID: uuid.New(), Cursor: "bad"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.List(context.Background(), ListParams{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestMarkReadOutcomes(t *testing.T) {
	repo := &fakeRepository{outcome: markMissing}
	svc := newTestService(t, repo)
	err := svc.MarkRead(context.Background(), uuid.New(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	repo.outcome = markAlreadyRead
	require.NoError(t, svc.MarkRead(context.Background(), uuid.New(), uuid.New()))

	repo.outcome = markUpdated
	require.NoError(t, svc.MarkRead(context.Background(), uuid.New(), uuid.New()))
	require.Equal(t, svc.now(), repo.markedAt)
}

func TestMarkAllReadSurfacesStorageErrors(t *testing.T) {
	svc := newTestService(t, &fakeRepository{err: errors.New("boom")})
	_, err := svc.MarkAllRead(context.Background(), uuid.New())
	require.Error(t, err)
	require.NotNil(t, pkgerrors.As(err))
}
