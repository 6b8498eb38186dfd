package models

// Payload shapes of the marketplace item API. Only the fields this
// service reads are declared.

// ItemsRequest is the body of an item search page request.
type ItemsRequest struct {
	UserID        string       `json:"user_id,omitempty"`
	Origin        OriginCoords `json:"origin"`
	Radius        float64      `json:"radius"`
	PageSize      int          `json:"page_size"`
	Page          int          `json:"page"`
	Discover      bool         `json:"discover"`
	FavoritesOnly bool         `json:"favorites_only"`
	WithStockOnly bool         `json:"with_stock_only"`
}

// OriginCoords is a latitude/longitude pair as the API encodes it.
type OriginCoords struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ItemsResponse wraps one page of listings.
type ItemsResponse struct {
	Items []RawItem `json:"items"`
}

// RawItem is one listing as returned by the marketplace.
type RawItem struct {
	Item           RawItemInfo  `json:"item"`
	Store          RawStore     `json:"store"`
	DisplayName    string       `json:"display_name"`
	PickupInterval *RawInterval `json:"pickup_interval,omitempty"`
	ItemsAvailable int          `json:"items_available"`
}

type RawItemInfo struct {
	ItemID              string   `json:"item_id"`
	Name                string   `json:"name"`
	Description         string   `json:"description"`
	CollectionInfo      string   `json:"collection_info"`
	PriceIncludingTaxes RawPrice `json:"price_including_taxes"`
}

type RawPrice struct {
	Code       string `json:"code"`
	MinorUnits int64  `json:"minor_units"`
	Decimals   int32  `json:"decimals"`
}

type RawInterval struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type RawStore struct {
	StoreID       string           `json:"store_id"`
	StoreName     string           `json:"store_name"`
	Branch        string           `json:"branch"`
	StoreLocation RawStoreLocation `json:"store_location"`
}

type RawStoreLocation struct {
	Address struct {
		AddressLine string `json:"address_line"`
	} `json:"address"`
	Location OriginCoords `json:"location"`
}
