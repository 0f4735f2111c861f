package dynschema

import (
	"github.com/blink-proto/blink/blinkerr"
	"github.com/blink-proto/blink/compact"
	"github.com/blink-proto/blink/registry"
	"github.com/blink-proto/blink/schema"
	"github.com/blink-proto/blink/value"
	"github.com/blink-proto/blink/vlc"
)

// PeekTypeID reads the length-prefixed frame starting at offset just far
// enough to report its type id, without decoding its body. Callers use it
// to classify a frame as a self-schema update (IsUpdateTypeID) or an
// ordinary application frame before choosing which registry to decode it
// against.
func PeekTypeID(data []byte, offset int) (uint64, error) {
	_, n, isNull, err := vlc.DecodeUint(data, offset)
	if err != nil {
		return 0, blinkerr.New(blinkerr.KindFraming, "%s", err)
	}

	if isNull {
		return 0, blinkerr.New(blinkerr.KindFraming, "top-level frame cannot be NULL")
	}

	typeID, _, isNull, err := vlc.DecodeUint(data, offset+n)
	if err != nil {
		return 0, blinkerr.New(blinkerr.KindFraming, "%s", err)
	}

	if isNull {
		return 0, blinkerr.New(blinkerr.KindFraming, "frame type id cannot be NULL")
	}

	return typeID, nil
}

// IsUpdateTypeID reports whether id is the Dynamic Schema Exchange type id
// this package's self-schema reserves. Other ids in compact.ReservedIDLow..
// compact.ReservedIDHigh are reserved by the wire format but not assigned
// any meaning by this implementation.
func IsUpdateTypeID(id uint64) bool {
	return id == UpdateTypeID
}

// DecodeUpdate reads one SchemaUpdate frame at offset and converts it into
// a [registry.Update], resolving every named type reference against
// target -- the application registry the update is destined for. It does
// not call target.ApplyUpdate; the caller decides when to commit.
func DecodeUpdate(target *registry.Registry, data []byte, offset int, rec *blinkerr.Recorder) (*registry.Update, int, error) {
	m, consumed, err := compact.DecodeAt(selfRegistry, data, offset, rec)
	if err != nil {
		return nil, 0, err
	}

	u, err := updateFromMessage(target, m)
	if err != nil {
		return nil, 0, err
	}

	return u, consumed, nil
}

func updateFromMessage(target *registry.Registry, m *value.Message) (*registry.Update, error) {
	u := &registry.Update{}

	groups, _ := m.Fields.Get("Groups")
	for _, gv := range groups.Seq {
		gu, err := groupUpdateFromValue(gv)
		if err != nil {
			return nil, err
		}

		u.Groups = append(u.Groups, gu)
	}

	fields, _ := m.Fields.Get("Fields")
	for _, fv := range fields.Seq {
		ns, _ := fv.Static.Fields.Get("Namespace")
		groupName, _ := fv.Static.Fields.Get("GroupName")
		fieldName, _ := fv.Static.Fields.Get("FieldName")
		optional, _ := fv.Static.Fields.Get("Optional")
		typeDesc, _ := fv.Static.Fields.Get("Type")

		t, err := fromTypeDescriptorValue(target, typeDesc.Static)
		if err != nil {
			return nil, blinkerr.WrapField(err, fieldName.Str)
		}

		owner := schema.QName{Namespace: ns.Str, Name: groupName.Str}
		attachFieldToGroup(u, owner, registry.FieldUpdate{Name: fieldName.Str, Type: t, Optional: optional.Bool})
	}

	typeDefs, _ := m.Fields.Get("TypeDefs")
	for _, tv := range typeDefs.Seq {
		ns, _ := tv.Static.Fields.Get("Namespace")
		name, _ := tv.Static.Fields.Get("Name")
		targetDesc, _ := tv.Static.Fields.Get("Target")

		t, err := fromTypeDescriptorValue(target, targetDesc.Static)
		if err != nil {
			return nil, blinkerr.WrapField(err, name.Str)
		}

		u.TypeDefs = append(u.TypeDefs, registry.TypeDefUpdate{
			Name:   schema.QName{Namespace: ns.Str, Name: name.Str},
			Target: t,
		})
	}

	annotations, _ := m.Fields.Get("Annotations")
	for _, av := range annotations.Seq {
		ns, _ := av.Static.Fields.Get("Namespace")
		groupName, _ := av.Static.Fields.Get("GroupName")
		key, _ := av.Static.Fields.Get("Key")
		val, _ := av.Static.Fields.Get("Value")

		au := registry.AnnotationUpdate{
			Target: schema.QName{Namespace: ns.Str, Name: groupName.Str},
			Key:    key.Str,
			Value:  val.Str,
		}

		if fn, ok := av.Static.Fields.Get("FieldName"); ok {
			au.Field = fn.Str
		}

		u.Annotations = append(u.Annotations, au)
	}

	return u, nil
}

func groupUpdateFromValue(gv value.Value) (registry.GroupUpdate, error) {
	ns, _ := gv.Static.Fields.Get("Namespace")
	name, _ := gv.Static.Fields.Get("Name")

	gu := registry.GroupUpdate{Name: schema.QName{Namespace: ns.Str, Name: name.Str}}

	if tid, ok := gv.Static.Fields.Get("TypeId"); ok {
		v := tid.Uint
		gu.TypeID = &v
	}

	if super, ok := gv.Static.Fields.Get("Super"); ok {
		sNs, sName := splitQNameWire(super.Str)
		q := schema.QName{Namespace: sNs, Name: sName}
		gu.Super = &q
	}

	return gu, nil
}

// attachFieldToGroup appends fu to the GroupUpdate named target within u,
// creating a bare GroupUpdate for it if no GroupDecl in the same frame
// named it. registry.ApplyUpdate rejects that GroupUpdate when target is
// already registered, so fields cannot be added to an existing group.
func attachFieldToGroup(u *registry.Update, target schema.QName, fu registry.FieldUpdate) {
	for i := range u.Groups {
		if u.Groups[i].Name == target {
			u.Groups[i].Fields = append(u.Groups[i].Fields, fu)

			return
		}
	}

	u.Groups = append(u.Groups, registry.GroupUpdate{Name: target, Fields: []registry.FieldUpdate{fu}})
}

func splitQNameWire(s string) (ns, name string) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[:i], s[i+1:]
		}
	}

	return "", s
}
