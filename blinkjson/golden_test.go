package blinkjson_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blink-proto/blink/blinkerr"
	"github.com/blink-proto/blink/blinkjson"
	"github.com/blink-proto/blink/internal/goldenfixture"
	"github.com/blink-proto/blink/value"
)

type addressCase struct {
	Name    string `yaml:"name"`
	Street  string `yaml:"street"`
	City    string `yaml:"city"`
	ZipCode uint64 `yaml:"zipcode"`
	Want    string `yaml:"want"`
}

func TestAddressGoldenJSON(t *testing.T) {
	t.Parallel()

	reg := mustRegistry(t)
	g := group(t, reg, "Address")

	cases := goldenfixture.Load[addressCase](t, "testdata/address_golden.yaml")

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			t.Parallel()

			m := value.NewMessage(value.FromSchema("Demo", "Address"))
			m.Fields.Set("Street", value.String(c.Street))
			m.Fields.Set("City", value.String(c.City))
			m.Fields.Set("ZipCode", value.Uint(c.ZipCode))

			rec := blinkerr.NewRecorder(true)

			got, err := blinkjson.Encode(reg, g, m, rec)
			require.NoError(t, err)
			assert.JSONEq(t, c.Want, string(got))
			assert.Equal(t, c.Want, string(got))

			decoded, err := blinkjson.Decode(reg, got, rec)
			require.NoError(t, err)

			street, ok := decoded.Fields.Get("Street")
			require.True(t, ok)
			assert.Equal(t, c.Street, street.Str)
		})
	}
}
