package mapping

import (
	"strings"

	"github.com/kosarica/feed-service/internal/types"
)

// DefaultRequired are the attributes an import cannot proceed without.
var DefaultRequired = []types.Attribute{types.AttrSKU, types.AttrTitle, types.AttrURL, types.AttrPrice}

// Validate returns a MappingError naming every required attribute whose
// selector is blank.
func Validate(m types.FieldMapping, required []types.Attribute) error {
	if required == nil {
		required = DefaultRequired
	}
	var missing []types.Attribute
	for _, attr := range required {
		if strings.TrimSpace(m.Get(attr)) == "" {
			missing = append(missing, attr)
		}
	}
	if len(missing) > 0 {
		return &types.MappingError{Missing: missing}
	}
	return nil
}

// Trim returns m with surrounding whitespace removed from every selector.
func Trim(m types.FieldMapping) types.FieldMapping {
	for _, attr := range types.Attributes {
		m.Set(attr, strings.TrimSpace(m.Get(attr)))
	}
	return m
}
