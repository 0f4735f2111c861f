package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blink-proto/blink/schema"
)

const demoSchema = `
namespace Demo

Address/1 -> string Street, string City, u32 ZipCode
Employee/2 -> string Name, u32 Age, Address HomeAddress
Manager/3 : Employee -> string Department, u32 TeamSize
Company/4 -> string CompanyName, Manager* CEO
`

func mustResolve(t *testing.T, src string) *schema.Schema {
	t.Helper()

	ast, err := schema.Parse(src)
	require.NoError(t, err)

	sch, err := schema.Resolve(ast)
	require.NoError(t, err)

	return sch
}

func groupByName(sch *schema.Schema, name string) *schema.GroupDef {
	for _, g := range sch.Groups {
		if g.Name.Name == name {
			return g
		}
	}

	return nil
}

func TestResolveLinearizesInheritedFields(t *testing.T) {
	t.Parallel()

	sch := mustResolve(t, demoSchema)

	manager := groupByName(sch, "Manager")
	require.NotNil(t, manager)

	names := make([]string, len(manager.Fields))
	for i, f := range manager.Fields {
		names[i] = f.Name
	}

	assert.Equal(t, []string{"Name", "Age", "HomeAddress", "Department", "TeamSize"}, names)
}

func TestResolveStaticVsDynamicGroupRef(t *testing.T) {
	t.Parallel()

	sch := mustResolve(t, demoSchema)

	employee := groupByName(sch, "Employee")
	require.NotNil(t, employee)

	var homeAddress schema.FieldDef
	for _, f := range employee.Fields {
		if f.Name == "HomeAddress" {
			homeAddress = f
		}
	}

	assert.Equal(t, schema.TagStaticGroupRef, homeAddress.Type.Tag)

	company := groupByName(sch, "Company")
	require.NotNil(t, company)

	var ceo schema.FieldDef
	for _, f := range company.Fields {
		if f.Name == "CEO" {
			ceo = f
		}
	}

	assert.Equal(t, schema.TagDynamicGroupRef, ceo.Type.Tag)
	assert.Equal(t, "Manager", ceo.Type.Group.Name.Name)
}

func TestResolveDuplicateTypeIDRejected(t *testing.T) {
	t.Parallel()

	ast, err := schema.Parse(`
Foo/1 -> u32 A
Bar/1 -> u32 B
`)
	require.NoError(t, err)

	_, err = schema.Resolve(ast)
	require.Error(t, err)
}

func TestResolveInheritanceCycleRejected(t *testing.T) {
	t.Parallel()

	ast, err := schema.Parse(`
A : B -> u32 X
B : A -> u32 Y
`)
	require.NoError(t, err)

	_, err = schema.Resolve(ast)
	require.Error(t, err)
}

func TestResolveNestedSequenceRejected(t *testing.T) {
	t.Parallel()

	ast, err := schema.Parse(`Foo -> sequence<sequence<u32>> X`)
	require.NoError(t, err)

	_, err = schema.Resolve(ast)
	require.Error(t, err)
}

func TestResolveDuplicateFieldNameAfterLinearizationRejected(t *testing.T) {
	t.Parallel()

	ast, err := schema.Parse(`
Base -> u32 X
Derived : Base -> string X
`)
	require.NoError(t, err)

	_, err = schema.Resolve(ast)
	require.Error(t, err)
}

func TestResolveEnumAndTypeDef(t *testing.T) {
	t.Parallel()

	ast, err := schema.Parse(`
namespace Demo
enum Currency { USD, EUR = 5, GBP }
type Money = decimal
Invoice/10 -> Currency Cur, Money Amount
`)
	require.NoError(t, err)

	sch, err := schema.Resolve(ast)
	require.NoError(t, err)

	invoice := groupByName(sch, "Invoice")
	require.NotNil(t, invoice)
	assert.Equal(t, schema.TagEnumRef, invoice.Fields[0].Type.Tag)
	assert.Equal(t, schema.TagPrimitive, invoice.Fields[1].Type.Tag)
	assert.Equal(t, schema.Decimal, invoice.Fields[1].Type.Primitive)

	eur, ok := invoice.Fields[0].Type.Enum.ValueBySymbol("EUR")
	require.True(t, ok)
	assert.Equal(t, int32(5), eur)

	gbp, ok := invoice.Fields[0].Type.Enum.ValueBySymbol("GBP")
	require.True(t, ok)
	assert.Equal(t, int32(6), gbp)
}

func TestResolveAnnotationMerging(t *testing.T) {
	t.Parallel()

	ast, err := schema.Parse(`
namespace Demo
Foo/1 -> u32 X @deprecated=false

annotate Demo:Foo.X @deprecated=true
annotate Demo:Foo @owner=team-a
`)
	require.NoError(t, err)

	sch, err := schema.Resolve(ast)
	require.NoError(t, err)

	foo := groupByName(sch, "Foo")
	require.NotNil(t, foo)
	assert.Equal(t, "true", foo.Fields[0].Annotations["deprecated"])
	assert.Equal(t, "team-a", foo.Annotations["owner"])
}
