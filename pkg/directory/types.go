package directory

import "github.com/rotisserie/eris"

// LatLng is the wire form of a coordinate pair.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Circle is a point with a radius in meters.
type Circle struct {
	Center LatLng  `json:"center"`
	Radius float64 `json:"radius"`
}

// Rectangle is a bounding box given by its southwest and northeast corners.
type Rectangle struct {
	Low  LatLng `json:"low"`
	High LatLng `json:"high"`
}

// LocationCircle nests a circle the way the wire format wants it.
type LocationCircle struct {
	Circle Circle `json:"circle"`
}

// LocationRect nests a rectangle the way the wire format wants it.
type LocationRect struct {
	Rectangle Rectangle `json:"rectangle"`
}

// SearchRequest describes a free-text place search. A bias nudges results
// toward an area without excluding anything; a restriction hard-filters to
// a box. The API accepts at most one of the two.
type SearchRequest struct {
	TextQuery           string          `json:"textQuery"`
	LocationBias        *LocationCircle `json:"locationBias,omitempty"`
	LocationRestriction *LocationRect   `json:"locationRestriction,omitempty"`
	MaxResultCount      int             `json:"maxResultCount,omitempty"`
	PageToken           string          `json:"pageToken,omitempty"`
}

// Validate rejects requests the API would refuse.
func (r SearchRequest) Validate() error {
	if r.TextQuery == "" {
		return eris.New("directory: text query required")
	}
	if r.LocationBias != nil && r.LocationRestriction != nil {
		return eris.New("directory: location bias and restriction are mutually exclusive")
	}
	return nil
}

// SearchResponse is one page of search results.
type SearchResponse struct {
	Places        []Candidate `json:"places"`
	NextPageToken string      `json:"nextPageToken,omitempty"`
}

// Candidate is a place returned by search, carrying just enough to score
// it against a curated record.
type Candidate struct {
	ID               string      `json:"id"`
	DisplayName      DisplayName `json:"displayName"`
	FormattedAddress string      `json:"formattedAddress,omitempty"`
	Location         *LatLng     `json:"location,omitempty"`
	Types            []string    `json:"types,omitempty"`
	Rating           float64     `json:"rating,omitempty"`
	UserRatingCount  int         `json:"userRatingCount,omitempty"`
}

// DisplayName holds the place's display name.
type DisplayName struct {
	Text string `json:"text"`
}

// OpeningHours holds the human-readable weekly schedule.
type OpeningHours struct {
	WeekdayDescriptions []string `json:"weekdayDescriptions,omitempty"`
}

// Photo is a reference to a hosted photo, not the bytes themselves.
type Photo struct {
	Name     string `json:"name"`
	WidthPx  int    `json:"widthPx,omitempty"`
	HeightPx int    `json:"heightPx,omitempty"`
}

// PlaceDetails is the full attribute set for one place.
type PlaceDetails struct {
	ID                       string        `json:"id"`
	DisplayName              DisplayName   `json:"displayName"`
	FormattedAddress         string        `json:"formattedAddress,omitempty"`
	NationalPhoneNumber      string        `json:"nationalPhoneNumber,omitempty"`
	InternationalPhoneNumber string        `json:"internationalPhoneNumber,omitempty"`
	WebsiteURI               string        `json:"websiteUri,omitempty"`
	Rating                   float64       `json:"rating,omitempty"`
	UserRatingCount          int           `json:"userRatingCount,omitempty"`
	Location                 *LatLng       `json:"location,omitempty"`
	BusinessStatus           string        `json:"businessStatus,omitempty"`
	PriceLevel               string        `json:"priceLevel,omitempty"`
	RegularOpeningHours      *OpeningHours `json:"regularOpeningHours,omitempty"`
	Photos                   []Photo       `json:"photos,omitempty"`
	Types                    []string      `json:"types,omitempty"`
	Takeout                  bool          `json:"takeout,omitempty"`
	Delivery                 bool          `json:"delivery,omitempty"`
	DineIn                   bool          `json:"dineIn,omitempty"`
	OutdoorSeating           bool          `json:"outdoorSeating,omitempty"`
	Reservable               bool          `json:"reservable,omitempty"`
	ServesVegetarianFood     bool          `json:"servesVegetarianFood,omitempty"`
}

// Counts reports how many wire requests a client has sent, retries
// included. Used for cost estimation.
type Counts struct {
	Search  int64 `json:"search"`
	Details int64 `json:"details"`
}
