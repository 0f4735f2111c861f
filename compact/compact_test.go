package compact_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blink-proto/blink/blinkerr"
	"github.com/blink-proto/blink/compact"
	"github.com/blink-proto/blink/registry"
	"github.com/blink-proto/blink/schema"
	"github.com/blink-proto/blink/value"
	"github.com/blink-proto/blink/vlc"
)

const demoSchema = `
namespace Demo

enum Color { Red, Green, Blue }

Address/1 -> string Street, string City, u32 ZipCode
Greeting/5 -> string Text?, fixed(4) Code?, Color C, sequence<u32> Nums
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

func TestRoundTripScalarsAndCollections(t *testing.T) {
	t.Parallel()

	reg := mustRegistry(t)
	g := group(t, reg, "Greeting")

	m := value.NewMessage(value.FromSchema("Demo", "Greeting"))
	m.Fields.Set("Text", value.String("hello"))
	m.Fields.Set("Code", value.Bytes([]byte{1, 2, 3, 4}))
	m.Fields.Set("C", value.Int(1)) // Green
	m.Fields.Set("Nums", value.Sequence([]value.Value{value.Uint(1), value.Uint(2), value.Uint(3)}))

	rec := blinkerr.NewRecorder(true)

	data, err := compact.Encode(reg, g, m, rec)
	require.NoError(t, err)
	require.False(t, rec.HasErrors())

	decoded, consumed, err := compact.Decode(reg, data, blinkerr.NewRecorder(true))
	require.NoError(t, err)
	assert.Equal(t, len(data), consumed)

	text, ok := decoded.Fields.Get("Text")
	require.True(t, ok)
	assert.Equal(t, "hello", text.Str)

	code, ok := decoded.Fields.Get("Code")
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4}, code.Bytes)

	nums, ok := decoded.Fields.Get("Nums")
	require.True(t, ok)
	require.Len(t, nums.Seq, 3)
	assert.Equal(t, uint64(2), nums.Seq[1].Uint)
}

func TestNullableFixedAbsent(t *testing.T) {
	t.Parallel()

	reg := mustRegistry(t)
	g := group(t, reg, "Greeting")

	m := value.NewMessage(value.FromSchema("Demo", "Greeting"))
	m.Fields.Set("Text", value.Absent)
	m.Fields.Set("Code", value.Absent)
	m.Fields.Set("C", value.Int(0))
	m.Fields.Set("Nums", value.Sequence(nil))

	data, err := compact.Encode(reg, g, m, blinkerr.NewRecorder(true))
	require.NoError(t, err)

	decoded, _, err := compact.Decode(reg, data, blinkerr.NewRecorder(true))
	require.NoError(t, err)

	code, ok := decoded.Fields.Get("Code")
	require.False(t, ok)
	assert.Equal(t, value.KindAbsent, code.Kind)

	text, ok := decoded.Fields.Get("Text")
	require.False(t, ok)
	assert.Equal(t, value.KindAbsent, text.Kind)
}

func TestDynamicGroupRefAcceptsDescendant(t *testing.T) {
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

	data, err := compact.Encode(reg, companyG, co, rec)
	require.NoError(t, err)
	require.False(t, rec.HasErrors())

	decoded, _, err := compact.Decode(reg, data, blinkerr.NewRecorder(true))
	require.NoError(t, err)

	ceo, ok := decoded.Fields.Get("CEO")
	require.True(t, ok)
	assert.Equal(t, "Demo:Manager", ceo.Msg.Type.String())
}

func TestDynamicGroupRefRejectsNonDescendantStrict(t *testing.T) {
	t.Parallel()

	reg := mustRegistry(t)
	companyG := group(t, reg, "Company")

	// Employee is Manager's base, not a descendant: violates W15.
	emp := value.NewMessage(value.FromSchema("Demo", "Employee"))
	emp.Fields.Set("Name", value.String("Bob"))
	emp.Fields.Set("HomeAddress", addressStatic())

	co := value.NewMessage(value.FromSchema("Demo", "Company"))
	co.Fields.Set("CompanyName", value.String("Acme"))
	co.Fields.Set("CEO", value.Msg(emp))

	_, err := compact.Encode(reg, companyG, co, blinkerr.NewRecorder(true))
	require.Error(t, err)
	assert.ErrorIs(t, err, blinkerr.ErrWeak)
}

func TestDynamicGroupRefRejectsNonDescendantPermissiveRecords(t *testing.T) {
	t.Parallel()

	reg := mustRegistry(t)
	companyG := group(t, reg, "Company")

	emp := value.NewMessage(value.FromSchema("Demo", "Employee"))
	emp.Fields.Set("Name", value.String("Bob"))
	emp.Fields.Set("HomeAddress", addressStatic())

	co := value.NewMessage(value.FromSchema("Demo", "Company"))
	co.Fields.Set("CompanyName", value.String("Acme"))
	co.Fields.Set("CEO", value.Msg(emp))

	rec := blinkerr.NewRecorder(false)

	data, err := compact.Encode(reg, companyG, co, rec)
	require.NoError(t, err)
	assert.True(t, rec.HasErrors())
	assert.NotEmpty(t, data)
}

func TestDecodeUnknownTopLevelTypeID(t *testing.T) {
	t.Parallel()

	reg := mustRegistry(t)

	body := vlc.EncodeUint(99999) // no declared fields follow; whole body is just the type id
	frame := append(vlc.EncodeUint(uint64(len(body))), body...)

	_, _, err := compact.Decode(reg, frame, blinkerr.NewRecorder(true))
	require.Error(t, err)
	assert.ErrorIs(t, err, blinkerr.ErrWeak)

	msg, consumed, err := compact.Decode(reg, frame, blinkerr.NewRecorder(false))
	require.NoError(t, err)
	assert.Equal(t, len(frame), consumed)
	assert.True(t, msg.UnknownType)
}

func TestMissingRequiredFieldIsStrongError(t *testing.T) {
	t.Parallel()

	reg := mustRegistry(t)
	g := group(t, reg, "Address")

	m := value.NewMessage(value.FromSchema("Demo", "Address"))
	m.Fields.Set("Street", value.String("1 Main St"))
	// City and ZipCode deliberately omitted.

	_, err := compact.Encode(reg, g, m, blinkerr.NewRecorder(true))
	require.Error(t, err)
	assert.ErrorIs(t, err, blinkerr.ErrValue)
}

func addressStatic() value.Value {
	sg := value.NewStaticGroupValue()
	sg.Fields.Set("Street", value.String("1 Main St"))
	sg.Fields.Set("City", value.String("Springfield"))
	sg.Fields.Set("ZipCode", value.Uint(12345))

	return value.Static(sg)
}
