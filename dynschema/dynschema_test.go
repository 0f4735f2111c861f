package dynschema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blink-proto/blink/blinkerr"
	"github.com/blink-proto/blink/compact"
	"github.com/blink-proto/blink/dynschema"
	"github.com/blink-proto/blink/registry"
	"github.com/blink-proto/blink/schema"
	"github.com/blink-proto/blink/value"
)

func emptyRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	ast, err := schema.Parse("namespace Demo\n")
	require.NoError(t, err)

	sch, err := schema.Resolve(ast)
	require.NoError(t, err)

	return registry.FromSchema(sch)
}

func greetingUpdate() registry.Update {
	typeID := uint64(9000)

	return registry.Update{
		Groups: []registry.GroupUpdate{
			{
				Name:   schema.QName{Namespace: "Demo", Name: "Greeting"},
				TypeID: &typeID,
				Fields: []registry.FieldUpdate{
					{Name: "Text", Type: schema.Type{Tag: schema.TagString}},
				},
			},
		},
	}
}

// TestDeclareThenDecodeApplicationFrame mirrors the spec's worked example:
// a schema update declaring Demo:Greeting/9000 followed by an application
// frame of that type decodes, via one DecodeStream call, to a single
// application message while leaving the registry mutated for later frames.
func TestDeclareThenDecodeApplicationFrame(t *testing.T) {
	t.Parallel()

	reg := emptyRegistry(t)

	rec := blinkerr.NewRecorder(true)

	updateFrame, err := dynschema.EncodeUpdate(greetingUpdate(), rec)
	require.NoError(t, err)
	require.False(t, rec.HasErrors())

	// Build the application frame against a scratch registry that already
	// has the group, since the real reg does not get it until DecodeStream
	// applies the update frame.
	scratch := emptyRegistry(t)
	require.NoError(t, scratch.ApplyUpdate(greetingUpdate()))

	g, err := scratch.GetByName(schema.QName{Namespace: "Demo", Name: "Greeting"})
	require.NoError(t, err)

	m := value.NewMessage(value.FromSchema("Demo", "Greeting"))
	m.Fields.Set("Text", value.String("hi"))

	appFrame, err := compact.Encode(scratch, g, m, rec)
	require.NoError(t, err)

	stream := append(append([]byte{}, updateFrame...), appFrame...)

	msgs, err := dynschema.DecodeStream(reg, stream, blinkerr.NewRecorder(true))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Demo:Greeting", msgs[0].Type.String())

	text, ok := msgs[0].Fields.Get("Text")
	require.True(t, ok)
	assert.Equal(t, "hi", text.Str)

	decl, err := reg.GetByName(schema.QName{Namespace: "Demo", Name: "Greeting"})
	require.NoError(t, err)
	assert.Equal(t, uint64(9000), *decl.TypeID)
}

func TestRejectedUpdateLeavesRegistryUnchanged(t *testing.T) {
	t.Parallel()

	ast, err := schema.Parse("namespace Demo\nAddress/1 -> string Street\n")
	require.NoError(t, err)

	sch, err := schema.Resolve(ast)
	require.NoError(t, err)

	reg := registry.FromSchema(sch)

	clashID := uint64(1)

	u := registry.Update{
		Groups: []registry.GroupUpdate{
			{Name: schema.QName{Namespace: "Demo", Name: "Other"}, TypeID: &clashID},
		},
	}

	rec := blinkerr.NewRecorder(true)

	frame, err := dynschema.EncodeUpdate(u, rec)
	require.NoError(t, err)

	decoded, _, err := dynschema.DecodeUpdate(reg, frame, 0, rec)
	require.NoError(t, err)

	err = reg.ApplyUpdate(*decoded)
	require.Error(t, err)
	assert.ErrorIs(t, err, blinkerr.ErrSchemaUpdate)

	_, err = reg.GetByName(schema.QName{Namespace: "Demo", Name: "Other"})
	require.Error(t, err)
}

func TestAnnotationUpdateRoundTrip(t *testing.T) {
	t.Parallel()

	ast, err := schema.Parse("namespace Demo\nAddress/1 -> string Street\n")
	require.NoError(t, err)

	sch, err := schema.Resolve(ast)
	require.NoError(t, err)

	reg := registry.FromSchema(sch)

	u := registry.Update{
		Annotations: []registry.AnnotationUpdate{
			{Target: schema.QName{Namespace: "Demo", Name: "Address"}, Field: "Street", Key: "deprecated", Value: "true"},
		},
	}

	rec := blinkerr.NewRecorder(true)

	frame, err := dynschema.EncodeUpdate(u, rec)
	require.NoError(t, err)

	decoded, _, err := dynschema.DecodeUpdate(reg, frame, 0, rec)
	require.NoError(t, err)
	require.NoError(t, reg.ApplyUpdate(*decoded))

	g, err := reg.GetByName(schema.QName{Namespace: "Demo", Name: "Address"})
	require.NoError(t, err)
	assert.Equal(t, "true", g.Fields[0].Annotations["deprecated"])
}

func TestTypeDefUpdateRoundTrip(t *testing.T) {
	t.Parallel()

	reg := emptyRegistry(t)

	u := registry.Update{
		TypeDefs: []registry.TypeDefUpdate{
			{
				Name:   schema.QName{Namespace: "Demo", Name: "SmallCount"},
				Target: schema.Type{Tag: schema.TagPrimitive, Primitive: schema.U16},
			},
		},
	}

	rec := blinkerr.NewRecorder(true)

	frame, err := dynschema.EncodeUpdate(u, rec)
	require.NoError(t, err)

	decoded, _, err := dynschema.DecodeUpdate(reg, frame, 0, rec)
	require.NoError(t, err)
	require.NoError(t, reg.ApplyUpdate(*decoded))

	target, err := reg.TypeDef(schema.QName{Namespace: "Demo", Name: "SmallCount"})
	require.NoError(t, err)
	assert.Equal(t, schema.U16, target.Primitive)
}

func TestPeekTypeIDClassifiesReservedRange(t *testing.T) {
	t.Parallel()

	rec := blinkerr.NewRecorder(true)

	frame, err := dynschema.EncodeUpdate(registry.Update{}, rec)
	require.NoError(t, err)

	id, err := dynschema.PeekTypeID(frame, 0)
	require.NoError(t, err)
	assert.True(t, dynschema.IsUpdateTypeID(id))
	assert.True(t, compact.IsReservedTypeID(id))
}
