package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

func product(shopID uuid.UUID, price int64) *models.Product {
	return &models.Product{ID: uuid.New(), ShopID: shopID, Title: "Tea", PriceMinor: price, Currency: "INR", IsActive: true}
}

func TestBuildCopiesPricesAndMergesDuplicates(t *testing.T) {
	t.Parallel()

	shopID := uuid.New()
	userID := uuid.New()
	tea := product(shopID, 10000)
	mug := product(shopID, 2500)
	mug.Title = "Mug"

	snap, err := NewBuilder().Build(userID, []models.CartItem{
		{ProductID: tea.ID, Qty: 2, Product: tea},
		{ProductID: mug.ID, Qty: 1, Product: mug},
		{ProductID: tea.ID, Qty: 1, Product: tea},
	})
	require.NoError(t, err)
	require.Equal(t, userID, snap.UserID)
	require.Equal(t, shopID, snap.ShopID)
	require.Equal(t, "INR", snap.Currency)
	require.Len(t, snap.Lines, 2)
	require.Equal(t, 3, snap.Lines[0].Qty)
	require.Equal(t, int64(30000), snap.Lines[0].TotalMinor)
	require.Equal(t, "Mug", snap.Lines[1].Name)
	require.Equal(t, int64(32500), snap.SubtotalMinor())

	tea.PriceMinor = 1
	require.Equal(t, int64(10000), snap.Lines[0].UnitPriceMinor)
}

func TestBuildRejections(t *testing.T) {
	t.Parallel()

	shopID := uuid.New()
	inactive := product(shopID, 100)
	inactive.IsActive = false
	deleted := product(shopID, 100)
	deleted.DeletedAt = gorm.DeletedAt{Valid: true}
	otherShop := product(uuid.New(), 100)
	usd := product(shopID, 100)
	usd.Currency = "USD"
	ok := product(shopID, 100)

	cases := []struct {
		name  string
		items []models.CartItem
		code  pkgerrors.Code
	}{
		{"empty", nil, pkgerrors.CodeEmptyCart},
		{"missing product", []models.CartItem{{ProductID: uuid.New(), Qty: 1}}, pkgerrors.CodeProductUnavailable},
		{"inactive product", []models.CartItem{{ProductID: inactive.ID, Qty: 1, Product: inactive}}, pkgerrors.CodeProductUnavailable},
		{"deleted product", []models.CartItem{{ProductID: deleted.ID, Qty: 1, Product: deleted}}, pkgerrors.CodeProductUnavailable},
		{"zero quantity", []models.CartItem{{ProductID: ok.ID, Qty: 0, Product: ok}}, pkgerrors.CodeValidation},
		{"two shops", []models.CartItem{{ProductID: ok.ID, Qty: 1, Product: ok}, {ProductID: otherShop.ID, Qty: 1, Product: otherShop}}, pkgerrors.CodeValidation},
		{"two currencies", []models.CartItem{{ProductID: ok.ID, Qty: 1, Product: ok}, {ProductID: usd.ID, Qty: 1, Product: usd}}, pkgerrors.CodeValidation},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			snap, err := NewBuilder().Build(uuid.New(), tc.items)
			require.Nil(t, snap)
			require.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
		})
	}
}

func TestRepositoryListsSoftDeletedProductsAndClears(t *testing.T) {
	t.Parallel()

	db := dbtest.Open(t)
	ctx := context.Background()
	userID := uuid.New()
	live := product(uuid.New(), 500)
	gone := product(live.ShopID, 700)
	require.NoError(t, db.Create(live).Error)
	require.NoError(t, db.Create(gone).Error)
	require.NoError(t, db.Delete(gone).Error)
	require.NoError(t, db.Create(&models.CartItem{UserID: userID, ProductID: live.ID, Qty: 1}).Error)
	require.NoError(t, db.Create(&models.CartItem{UserID: userID, ProductID: gone.ID, Qty: 2}).Error)

	repo := NewRepository(db)
	items, err := repo.ListItems(ctx, userID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		require.NotNil(t, item.Product)
	}

	_, err = NewBuilder().Build(userID, items)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeProductUnavailable))

	require.NoError(t, repo.Clear(ctx, userID))
	items, err = repo.ListItems(ctx, userID)
	require.NoError(t, err)
	require.Empty(t, items)
}
