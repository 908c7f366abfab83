package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// Location is where a session takes place. It is either an
// OnlineLocation or a PhysicalLocation; which one is decided by the
// session's online flag.
type Location interface {
	IsOnline() bool
	isLocation()
}

// OnlineLocation describes a virtual table
type OnlineLocation struct {
	ServerName  string `json:"server_name,omitempty"`
	ChannelName string `json:"channel_name,omitempty"`
	JoinLink    string `json:"join_link,omitempty"`
	RoomID      string `json:"room_id,omitempty"`
	Password    string `json:"password,omitempty"`
}

func (OnlineLocation) IsOnline() bool { return true }
func (OnlineLocation) isLocation()    {}

// Coordinates is a latitude/longitude pair
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// PhysicalLocation describes a venue
type PhysicalLocation struct {
	Name        string       `json:"name,omitempty"`
	Address     string       `json:"address,omitempty"`
	City        string       `json:"city"`
	State       string       `json:"state,omitempty"`
	ZipCode     string       `json:"zip_code,omitempty"`
	Country     string       `json:"country,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Description string       `json:"description,omitempty"`
}

func (PhysicalLocation) IsOnline() bool { return false }
func (PhysicalLocation) isLocation()    {}

// DecodeLocation decodes a raw location payload into the variant selected
// by isOnline. An empty payload yields the zero value of that variant.
func DecodeLocation(isOnline bool, raw []byte) (Location, error) {
	empty := len(strings.TrimSpace(string(raw))) == 0 || string(raw) == "null"
	if isOnline {
		var loc OnlineLocation
		if !empty {
			if err := json.Unmarshal(raw, &loc); err != nil {
				return nil, fmt.Errorf("decode online location: %w", err)
			}
		}
		return loc, nil
	}
	var loc PhysicalLocation
	if !empty {
		if err := json.Unmarshal(raw, &loc); err != nil {
			return nil, fmt.Errorf("decode physical location: %w", err)
		}
	}
	return loc, nil
}

// EncodeLocation encodes a location variant to JSON
func EncodeLocation(loc Location) ([]byte, error) {
	switch l := loc.(type) {
	case nil:
		return []byte("{}"), nil
	case OnlineLocation:
		return json.Marshal(l)
	case *OnlineLocation:
		return json.Marshal(*l)
	case PhysicalLocation:
		return json.Marshal(l)
	case *PhysicalLocation:
		return json.Marshal(*l)
	default:
		return nil, fmt.Errorf("unsupported location type %T", loc)
	}
}

// CityOf returns the city of a physical location, or "" for online ones
func CityOf(loc Location) string {
	switch l := loc.(type) {
	case PhysicalLocation:
		return l.City
	case *PhysicalLocation:
		if l != nil {
			return l.City
		}
	}
	return ""
}

// FoldCity normalizes a city name for case-insensitive matching
func FoldCity(city string) string {
	return cases.Fold().String(strings.TrimSpace(city))
}

// ValidateLocation checks that loc matches isOnline
func ValidateLocation(isOnline bool, loc Location) error {
	if loc == nil {
		if isOnline {
			return nil
		}
		return ErrMissingCity
	}
	if loc.IsOnline() != isOnline {
		return ErrLocationMismatch
	}
	if !isOnline && strings.TrimSpace(CityOf(loc)) == "" {
		return ErrMissingCity
	}
	return nil
}
