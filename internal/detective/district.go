package detective

import (
	"slices"
	"strings"
)

// District is one of the nine zone codes that key an address together with
// the house number. Codes are kept in the game's own alphabet.
type District string

const (
	DistrictNorth     District = "С"
	DistrictNorthEast District = "СВ"
	DistrictEast      District = "В"
	DistrictSouthEast District = "ЮВ"
	DistrictSouth     District = "Ю"
	DistrictSouthWest District = "ЮЗ"
	DistrictWest      District = "З"
	DistrictNorthWest District = "СЗ"
	DistrictCenter    District = "Ц"
)

// Districts lists every district in display order.
var Districts = []District{
	DistrictNorth,
	DistrictNorthEast,
	DistrictEast,
	DistrictSouthEast,
	DistrictSouth,
	DistrictSouthWest,
	DistrictWest,
	DistrictNorthWest,
	DistrictCenter,
}

// ParseDistrict trims surrounding space and reports whether the value is a
// known code. No case folding is applied.
func ParseDistrict(s string) (District, bool) {
	d := District(strings.TrimSpace(s))
	if !d.Valid() {
		return "", false
	}
	return d, true
}

func (d District) Valid() bool {
	return slices.Contains(Districts, d)
}

// Rank is the position of d in display order, or len(Districts) when the
// code is unknown.
func (d District) Rank() int {
	if i := slices.Index(Districts, d); i >= 0 {
		return i
	}
	return len(Districts)
}
