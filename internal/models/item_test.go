package models

import (
	"testing"
	"time"

	"magicbag/internal/common"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawListing() RawItem {
	raw := RawItem{
		DisplayName:    "Bakker Bart - Surprise Bag",
		ItemsAvailable: 3,
		PickupInterval: &RawInterval{Start: "2024-03-05T17:00:00Z", End: "2024-03-05T17:30:00Z"},
	}
	raw.Item = RawItemInfo{
		ItemID:         "12345",
		Name:           "Surprise Bag",
		Description:    "Bread and pastries",
		CollectionInfo: "Ask at the counter",
		PriceIncludingTaxes: RawPrice{
			Code:       "EUR",
			MinorUnits: 499,
			Decimals:   2,
		},
	}
	raw.Store = RawStore{
		StoreID:   "987",
		StoreName: "Bakker Bart",
		Branch:    "Brugge",
	}
	raw.Store.StoreLocation.Address.AddressLine = "Markt 1, 8000 Brugge"
	raw.Store.StoreLocation.Location = OriginCoords{Latitude: 51.2089, Longitude: 3.2242}
	return raw
}

func TestNewItemFromAPI(t *testing.T) {
	item, err := NewItemFromAPI(rawListing())
	require.NoError(t, err)

	want := &Item{
		ID:             "12345",
		Name:           "Surprise Bag",
		DisplayName:    "Bakker Bart - Surprise Bag",
		Description:    "Bread and pastries",
		CollectionInfo: "Ask at the counter",
		Amount:         3,
		Price:          Money{MinorUnits: 499, Decimals: 2, Currency: "EUR"},
		PickupInterval: &Interval{
			Start: time.Date(2024, 3, 5, 17, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 3, 5, 17, 30, 0, 0, time.UTC),
		},
		Store: Store{
			ID:        "987",
			Name:      "Brugge Bakker Bart",
			Address:   "Markt 1, 8000 Brugge",
			Latitude:  51.2089,
			Longitude: 3.2242,
		},
	}
	if diff := cmp.Diff(want, item); diff != "" {
		t.Errorf("NewItemFromAPI mismatch (-want +got):\n%s", diff)
	}
	assert.InDelta(t, 4.99, item.Price.Float(), 1e-9)
}

func TestNewItemFromAPI_NoPickupInterval(t *testing.T) {
	raw := rawListing()
	raw.PickupInterval = nil

	item, err := NewItemFromAPI(raw)
	require.NoError(t, err)
	assert.Nil(t, item.PickupInterval)
	assert.False(t, item.HasExpired(time.Now().UTC().Add(1000*time.Hour)))
}

func TestNewItemFromAPI_PartialPickupInterval(t *testing.T) {
	raw := rawListing()
	raw.PickupInterval = &RawInterval{Start: "2024-03-05T17:00:00Z"}

	item, err := NewItemFromAPI(raw)
	require.NoError(t, err)
	assert.Nil(t, item.PickupInterval)
}

func TestNewItemFromAPI_MalformedPickupInterval(t *testing.T) {
	raw := rawListing()
	raw.PickupInterval = &RawInterval{Start: "not-a-date", End: "2024-03-05T17:30:00Z"}

	item, err := NewItemFromAPI(raw)
	assert.Nil(t, item)
	assert.ErrorIs(t, err, common.ErrParse)
	assert.Contains(t, err.Error(), "12345")
}

func TestNewStoreFromAPI_WithoutBranch(t *testing.T) {
	store := NewStoreFromAPI(RawStore{StoreID: "1", StoreName: "Corner Shop"})
	assert.Equal(t, "Corner Shop", store.Name)

	store = NewStoreFromAPI(RawStore{StoreID: "2"})
	assert.Equal(t, "", store.Name)
}

func TestItemExpiryAndAvailability(t *testing.T) {
	item, err := NewItemFromAPI(rawListing())
	require.NoError(t, err)

	before := time.Date(2024, 3, 5, 16, 0, 0, 0, time.UTC)
	after := time.Date(2024, 3, 5, 18, 0, 0, 0, time.UTC)

	assert.False(t, item.HasExpired(before))
	assert.True(t, item.IsAvailable(before))
	assert.True(t, item.HasExpired(after))
	assert.False(t, item.IsAvailable(after))

	item.Amount = 0
	assert.False(t, item.IsAvailable(before))
}

func TestItemTitle(t *testing.T) {
	item := &Item{Name: "Surprise Bag"}
	assert.Equal(t, "Surprise Bag", item.Title())
	item.DisplayName = "Shop - Surprise Bag"
	assert.Equal(t, "Shop - Surprise Bag", item.Title())
}
