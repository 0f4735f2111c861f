package registry_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blink-proto/blink/bklog"
	"github.com/blink-proto/blink/registry"
	"github.com/blink-proto/blink/schema"
)

func mustSchema(t *testing.T, src string) *schema.Schema {
	t.Helper()

	ast, err := schema.Parse(src)
	require.NoError(t, err)

	sch, err := schema.Resolve(ast)
	require.NoError(t, err)

	return sch
}

func TestLookupByNameAndID(t *testing.T) {
	t.Parallel()

	sch := mustSchema(t, `
namespace Demo
Foo/7 -> u32 X
`)
	reg := registry.FromSchema(sch)

	g, err := reg.GetByName(schema.QName{Namespace: "Demo", Name: "Foo"})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), *g.TypeID)

	g2, err := reg.GetByID(7)
	require.NoError(t, err)
	assert.Equal(t, g, g2)

	_, err = reg.GetByName(schema.QName{Name: "Nope"})
	require.Error(t, err)
}

func TestApplyUpdateAddsDecodableGroup(t *testing.T) {
	t.Parallel()

	sch := mustSchema(t, `namespace Demo`)
	reg := registry.FromSchema(sch)

	id := uint64(9000)
	err := reg.ApplyUpdate(registry.Update{
		Groups: []registry.GroupUpdate{
			{
				Name:   schema.QName{Namespace: "Demo", Name: "Greeting"},
				TypeID: &id,
				Fields: []registry.FieldUpdate{
					{Name: "Text", Type: schema.Type{Tag: schema.TagString}},
				},
			},
		},
	})
	require.NoError(t, err)

	g, err := reg.GetByID(9000)
	require.NoError(t, err)
	assert.Equal(t, "Greeting", g.Name.Name)
	assert.Equal(t, "Text", g.Fields[0].Name)
}

func TestApplyUpdateRejectsDuplicateTypeIDWithoutMutating(t *testing.T) {
	t.Parallel()

	sch := mustSchema(t, `
namespace Demo
Foo/1 -> u32 X
`)
	reg := registry.FromSchema(sch)

	id := uint64(1)
	err := reg.ApplyUpdate(registry.Update{
		Groups: []registry.GroupUpdate{
			{Name: schema.QName{Namespace: "Demo", Name: "Bar"}, TypeID: &id},
		},
	})
	require.Error(t, err)

	_, err = reg.GetByName(schema.QName{Namespace: "Demo", Name: "Bar"})
	require.Error(t, err, "rejected update must not mutate the registry")
}

func TestApplyUpdateIncrementalAnnotation(t *testing.T) {
	t.Parallel()

	sch := mustSchema(t, `
namespace Demo
Foo/1 -> u32 X
`)
	reg := registry.FromSchema(sch)

	err := reg.ApplyUpdate(registry.Update{
		Annotations: []registry.AnnotationUpdate{
			{Target: schema.QName{Namespace: "Demo", Name: "Foo"}, Field: "X", Key: "deprecated", Value: "true"},
		},
	})
	require.NoError(t, err)

	g, err := reg.GetByName(schema.QName{Namespace: "Demo", Name: "Foo"})
	require.NoError(t, err)
	assert.Equal(t, "true", g.Fields[0].Annotations["deprecated"])
}

func TestApplyUpdateTypeDef(t *testing.T) {
	t.Parallel()

	sch := mustSchema(t, `namespace Demo`)
	reg := registry.FromSchema(sch)

	err := reg.ApplyUpdate(registry.Update{
		TypeDefs: []registry.TypeDefUpdate{
			{
				Name:   schema.QName{Namespace: "Demo", Name: "SmallCount"},
				Target: schema.Type{Tag: schema.TagPrimitive, Primitive: schema.U16},
			},
		},
	})
	require.NoError(t, err)

	target, err := reg.TypeDef(schema.QName{Namespace: "Demo", Name: "SmallCount"})
	require.NoError(t, err)
	assert.Equal(t, schema.U16, target.Primitive)

	err = reg.ApplyUpdate(registry.Update{
		TypeDefs: []registry.TypeDefUpdate{
			{Name: schema.QName{Namespace: "Demo", Name: "SmallCount"}, Target: schema.Type{Tag: schema.TagObject}},
		},
	})
	require.Error(t, err, "re-declaring an existing typedef must be rejected")
}

func TestSetLoggerRecordsUpdateOutcome(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	sch := mustSchema(t, `namespace Demo`)
	reg := registry.FromSchema(sch)
	reg.SetLogger(slog.New(bklog.CreateHandler(&buf, slog.LevelInfo, bklog.FormatLogfmt)))

	id := uint64(1)
	require.NoError(t, reg.ApplyUpdate(registry.Update{
		Groups: []registry.GroupUpdate{{Name: schema.QName{Namespace: "Demo", Name: "Foo"}, TypeID: &id}},
	}))
	assert.Contains(t, buf.String(), "schema update applied")

	buf.Reset()

	err := reg.ApplyUpdate(registry.Update{
		Groups: []registry.GroupUpdate{{Name: schema.QName{Namespace: "Demo", Name: "Bar"}, TypeID: &id}},
	})
	require.Error(t, err)
	assert.Contains(t, buf.String(), "schema update rejected")
}
