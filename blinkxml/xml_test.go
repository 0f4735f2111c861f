package blinkxml_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blink-proto/blink/blinkerr"
	"github.com/blink-proto/blink/blinkxml"
	"github.com/blink-proto/blink/registry"
	"github.com/blink-proto/blink/schema"
	"github.com/blink-proto/blink/value"
)

const demoSchema = `
namespace Demo

enum Color { Red, Green, Blue }

Address/1 -> string Street, string City, u32 ZipCode
Greeting/5 -> string Text?, binary Code?, Color C, sequence<u32> Nums, decimal Price
Employee/2 -> string Name, Address HomeAddress
Manager/3 : Employee -> u32 TeamSize
Company/4 -> string CompanyName, Manager* CEO
`

func mustRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	ast, err := schema.Parse(demoSchema)
	require.NoError(t, err)

	sch, err := schema.Resolve(ast)
	require.NoError(t, err)

	return registry.FromSchema(sch)
}

func group(t *testing.T, reg *registry.Registry, name string) *schema.GroupDef {
	t.Helper()

	g, err := reg.GetByName(schema.QName{Namespace: "Demo", Name: name})
	require.NoError(t, err)

	return g
}

func addressStatic() value.Value {
	sg := value.NewStaticGroupValue()
	sg.Fields.Set("Street", value.String("1 Main St"))
	sg.Fields.Set("City", value.String("Springfield"))
	sg.Fields.Set("ZipCode", value.Uint(12345))

	return value.Static(sg)
}

func TestRoundTripScalarsAndCollections(t *testing.T) {
	t.Parallel()

	reg := mustRegistry(t)
	g := group(t, reg, "Greeting")

	m := value.NewMessage(value.FromSchema("Demo", "Greeting"))
	m.Fields.Set("Text", value.String("hello"))
	m.Fields.Set("Code", value.Bytes([]byte{0xff, 0xfe, 0x00}))
	m.Fields.Set("C", value.Int(2)) // Blue
	m.Fields.Set("Nums", value.Sequence([]value.Value{value.Uint(1), value.Uint(2), value.Uint(3)}))
	m.Fields.Set("Price", value.Decimal(value.DecimalValue{Mantissa: 1995, Exponent: -2}))

	rec := blinkerr.NewRecorder(true)

	data, err := blinkxml.Encode(reg, g, m, rec)
	require.NoError(t, err)
	require.False(t, rec.HasErrors())
	assert.Contains(t, string(data), `binary="yes"`)
	assert.Contains(t, string(data), "<C>Blue</C>")

	decoded, err := blinkxml.Decode(reg, data, blinkerr.NewRecorder(true))
	require.NoError(t, err)

	text, ok := decoded.Fields.Get("Text")
	require.True(t, ok)
	assert.Equal(t, "hello", text.Str)

	code, ok := decoded.Fields.Get("Code")
	require.True(t, ok)
	assert.Equal(t, []byte{0xff, 0xfe, 0x00}, code.Bytes)

	nums, ok := decoded.Fields.Get("Nums")
	require.True(t, ok)
	require.Len(t, nums.Seq, 3)
	assert.Equal(t, uint64(3), nums.Seq[2].Uint)

	price, ok := decoded.Fields.Get("Price")
	require.True(t, ok)
	assert.Equal(t, int64(1995), price.Decimal.Mantissa)
	assert.Equal(t, int8(-2), price.Decimal.Exponent)
}

func TestOptionalFieldsOmittedWhenAbsent(t *testing.T) {
	t.Parallel()

	reg := mustRegistry(t)
	g := group(t, reg, "Greeting")

	m := value.NewMessage(value.FromSchema("Demo", "Greeting"))
	m.Fields.Set("Text", value.Absent)
	m.Fields.Set("Code", value.Absent)
	m.Fields.Set("C", value.Int(0))
	m.Fields.Set("Nums", value.Sequence(nil))
	m.Fields.Set("Price", value.Decimal(value.DecimalValue{}))

	data, err := blinkxml.Encode(reg, g, m, blinkerr.NewRecorder(true))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "<Text>")
	assert.NotContains(t, string(data), "<Code")
}

func TestNestedStaticAndDynamicGroupRoundTrip(t *testing.T) {
	t.Parallel()

	reg := mustRegistry(t)
	companyG := group(t, reg, "Company")

	mgr := value.NewMessage(value.FromSchema("Demo", "Manager"))
	mgr.Fields.Set("Name", value.String("Alice"))
	mgr.Fields.Set("HomeAddress", addressStatic())
	mgr.Fields.Set("TeamSize", value.Uint(4))

	co := value.NewMessage(value.FromSchema("Demo", "Company"))
	co.Fields.Set("CompanyName", value.String("Acme"))
	co.Fields.Set("CEO", value.Msg(mgr))

	rec := blinkerr.NewRecorder(true)

	data, err := blinkxml.Encode(reg, companyG, co, rec)
	require.NoError(t, err)
	require.False(t, rec.HasErrors())
	assert.Contains(t, string(data), `type="Demo:Manager"`)

	decoded, err := blinkxml.Decode(reg, data, blinkerr.NewRecorder(true))
	require.NoError(t, err)

	ceo, ok := decoded.Fields.Get("CEO")
	require.True(t, ok)
	assert.Equal(t, "Demo:Manager", ceo.Msg.Type.String())

	home, ok := ceo.Msg.Fields.Get("HomeAddress")
	require.True(t, ok)
	city, ok := home.Static.Fields.Get("City")
	require.True(t, ok)
	assert.Equal(t, "Springfield", city.Str)
}

func TestExtensionsRoundTrip(t *testing.T) {
	t.Parallel()

	reg := mustRegistry(t)
	g := group(t, reg, "Address")

	ext := value.NewMessage(value.FromSchema("Demo", "Greeting"))
	ext.Fields.Set("Text", value.String("hi"))
	ext.Fields.Set("Code", value.Absent)
	ext.Fields.Set("C", value.Int(0))
	ext.Fields.Set("Nums", value.Sequence(nil))
	ext.Fields.Set("Price", value.Decimal(value.DecimalValue{}))

	m := value.NewMessage(value.FromSchema("Demo", "Address"))
	m.Fields.Set("Street", value.String("1 Main St"))
	m.Fields.Set("City", value.String("Springfield"))
	m.Fields.Set("ZipCode", value.Uint(12345))
	m.Extension = []*value.Message{ext}

	rec := blinkerr.NewRecorder(true)

	data, err := blinkxml.Encode(reg, g, m, rec)
	require.NoError(t, err)
	require.False(t, rec.HasErrors())
	assert.Contains(t, string(data), `xmlns:blink="http://blinkprotocol.org/ns/blink"`)

	decoded, err := blinkxml.Decode(reg, data, blinkerr.NewRecorder(true))
	require.NoError(t, err)
	require.Len(t, decoded.Extension, 1)

	extText, ok := decoded.Extension[0].Fields.Get("Text")
	require.True(t, ok)
	assert.Equal(t, "hi", extText.Str)
}

func TestDynamicGroupRefRejectsNonDescendantStrict(t *testing.T) {
	t.Parallel()

	reg := mustRegistry(t)
	companyG := group(t, reg, "Company")

	emp := value.NewMessage(value.FromSchema("Demo", "Employee"))
	emp.Fields.Set("Name", value.String("Bob"))
	emp.Fields.Set("HomeAddress", addressStatic())

	co := value.NewMessage(value.FromSchema("Demo", "Company"))
	co.Fields.Set("CompanyName", value.String("Acme"))
	co.Fields.Set("CEO", value.Msg(emp))

	_, err := blinkxml.Encode(reg, companyG, co, blinkerr.NewRecorder(true))
	require.Error(t, err)
	assert.ErrorIs(t, err, blinkerr.ErrWeak)
}

func TestMissingRequiredFieldIsStrongError(t *testing.T) {
	t.Parallel()

	reg := mustRegistry(t)
	g := group(t, reg, "Address")

	m := value.NewMessage(value.FromSchema("Demo", "Address"))
	m.Fields.Set("Street", value.String("1 Main St"))

	_, err := blinkxml.Encode(reg, g, m, blinkerr.NewRecorder(true))
	require.Error(t, err)
	assert.ErrorIs(t, err, blinkerr.ErrValue)
}

func TestEncodeStreamAndDecodeStream(t *testing.T) {
	t.Parallel()

	reg := mustRegistry(t)

	a := value.NewMessage(value.FromSchema("Demo", "Address"))
	a.Fields.Set("Street", value.String("1 Main St"))
	a.Fields.Set("City", value.String("Springfield"))
	a.Fields.Set("ZipCode", value.Uint(12345))

	b := value.NewMessage(value.FromSchema("Demo", "Address"))
	b.Fields.Set("Street", value.String("2 Side St"))
	b.Fields.Set("City", value.String("Shelbyville"))
	b.Fields.Set("ZipCode", value.Uint(54321))

	data, err := blinkxml.EncodeStream(reg, []*value.Message{a, b}, blinkerr.NewRecorder(true))
	require.NoError(t, err)

	decoded, err := blinkxml.DecodeStream(reg, data, blinkerr.NewRecorder(true))
	require.NoError(t, err)
	require.Len(t, decoded, 2)

	city, ok := decoded[1].Fields.Get("City")
	require.True(t, ok)
	assert.Equal(t, "Shelbyville", city.Str)
}

func TestUnknownTopLevelTypePermissive(t *testing.T) {
	t.Parallel()

	reg := mustRegistry(t)

	xmlDoc := []byte(`<Bogus xmlns="NoSuchNamespace"><Field>x</Field></Bogus>`)

	rec := blinkerr.NewRecorder(false)

	decoded, err := blinkxml.Decode(reg, xmlDoc, rec)
	require.NoError(t, err)
	assert.True(t, decoded.UnknownType)
	assert.True(t, rec.HasErrors())
}
