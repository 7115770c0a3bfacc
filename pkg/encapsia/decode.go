package encapsia

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Decode maps a loosely-typed value (what JSON decoding of a result yields)
// onto a caller-supplied struct, honoring json tags. Handy for the endpoints
// that return free-form maps, e.g. ListBlobs rows or WhoAmI.
func Decode(input, output any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           output,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build decoder: %w", err)
	}
	return dec.Decode(input)
}
