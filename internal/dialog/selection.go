package dialog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wolfman30/guesthub/internal/pms"
)

// House is a catalog entry used when the property system omits titles or
// capacities.
type House struct {
	ID        string `yaml:"id" json:"id"`
	Title     string `yaml:"title" json:"title"`
	MaxGuests int    `yaml:"maxGuests" json:"maxGuests"`
}

// HouseCatalog indexes houses by room id.
type HouseCatalog struct {
	byID map[string]House
}

// DefaultHouses is the property's built-in catalog.
func DefaultHouses() []House {
	return []House{
		{ID: "h1", Title: "Домик 1 (до 4 гостей)", MaxGuests: 4},
		{ID: "h2", Title: "Домик 2 (до 4 гостей)", MaxGuests: 4},
		{ID: "h3", Title: "Домик 3 (до 4 гостей)", MaxGuests: 4},
		{ID: "h4", Title: "Большой дом (до 6 гостей)", MaxGuests: 6},
	}
}

func NewHouseCatalog(houses []House) *HouseCatalog {
	c := &HouseCatalog{byID: make(map[string]House, len(houses))}
	for _, h := range houses {
		c.byID[h.ID] = h
	}
	return c
}

// LoadHouseCatalog reads a YAML/JSON list of houses. An empty path or missing
// file yields the default catalog.
func LoadHouseCatalog(path string) (*HouseCatalog, error) {
	if strings.TrimSpace(path) == "" {
		return NewHouseCatalog(DefaultHouses()), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewHouseCatalog(DefaultHouses()), nil
		}
		return nil, fmt.Errorf("dialog: read house catalog: %w", err)
	}
	var houses []House
	if err := yaml.Unmarshal(raw, &houses); err != nil {
		return nil, fmt.Errorf("dialog: parse house catalog: %w", err)
	}
	for i, h := range houses {
		if h.ID == "" {
			return nil, fmt.Errorf("dialog: house %d has no id", i)
		}
	}
	return NewHouseCatalog(houses), nil
}

func (c *HouseCatalog) lookup(id string) (House, bool) {
	if c == nil {
		return House{}, false
	}
	h, ok := c.byID[id]
	return h, ok
}

// Offer is a room that fits the party.
type Offer struct {
	RoomID   string
	Title    string
	Price    float64
	Currency string
}

// SelectRooms keeps rooms with free units whose capacity covers totalGuests,
// preserving property system order. Capacity comes from the room itself, then
// the catalog; rooms with no known capacity are trusted since the availability
// query already carried the guest counts.
func SelectRooms(rooms []pms.Room, totalGuests int, catalog *HouseCatalog) []Offer {
	var offers []Offer
	for _, r := range rooms {
		if r.AvailableUnits <= 0 {
			continue
		}
		house, known := catalog.lookup(r.ID)
		capacity := r.Capacity
		if capacity == 0 && known {
			capacity = house.MaxGuests
		}
		if capacity > 0 && capacity < totalGuests {
			continue
		}
		title := r.Title
		if title == "" && known {
			title = house.Title
		}
		if title == "" {
			title = r.ID
		}
		offers = append(offers, Offer{RoomID: r.ID, Title: title, Price: r.Price, Currency: r.Currency})
	}
	return offers
}
