package dynschema

import (
	"github.com/blink-proto/blink/blinkerr"
	"github.com/blink-proto/blink/compact"
	"github.com/blink-proto/blink/registry"
	"github.com/blink-proto/blink/value"
)

// EncodeUpdate renders u as one Compact Binary SchemaUpdate frame at
// UpdateTypeID. u's group field types must already resolve against target
// application registry the update is headed for (the caller built u by
// hand or decoded it via DecodeUpdate against some other registry first).
func EncodeUpdate(u registry.Update, rec *blinkerr.Recorder) ([]byte, error) {
	m := value.NewMessage(value.FromSchema("BlinkSelfSchema", "SchemaUpdate"))

	var groupDecls, fieldDecls, typeDefDecls, annotationDecls []value.Value

	for _, gu := range u.Groups {
		gd := value.NewStaticGroupValue()
		gd.Fields.Set("Namespace", value.String(gu.Name.Namespace))
		gd.Fields.Set("Name", value.String(gu.Name.Name))

		if gu.TypeID != nil {
			gd.Fields.Set("TypeId", value.Uint(*gu.TypeID))
		}

		if gu.Super != nil {
			gd.Fields.Set("Super", value.String(gu.Super.String()))
		}

		groupDecls = append(groupDecls, value.Static(gd))

		for _, fu := range gu.Fields {
			fd := value.NewStaticGroupValue()
			fd.Fields.Set("Namespace", value.String(gu.Name.Namespace))
			fd.Fields.Set("GroupName", value.String(gu.Name.Name))
			fd.Fields.Set("FieldName", value.String(fu.Name))
			fd.Fields.Set("Optional", value.Bool(fu.Optional))
			fd.Fields.Set("Type", toTypeDescriptorValue(fu.Type))

			fieldDecls = append(fieldDecls, value.Static(fd))
		}
	}

	for _, tu := range u.TypeDefs {
		td := value.NewStaticGroupValue()
		td.Fields.Set("Namespace", value.String(tu.Name.Namespace))
		td.Fields.Set("Name", value.String(tu.Name.Name))
		td.Fields.Set("Target", toTypeDescriptorValue(tu.Target))

		typeDefDecls = append(typeDefDecls, value.Static(td))
	}

	for _, au := range u.Annotations {
		ad := value.NewStaticGroupValue()
		ad.Fields.Set("Namespace", value.String(au.Target.Namespace))
		ad.Fields.Set("GroupName", value.String(au.Target.Name))

		if au.Field != "" {
			ad.Fields.Set("FieldName", value.String(au.Field))
		}

		ad.Fields.Set("Key", value.String(au.Key))
		ad.Fields.Set("Value", value.String(au.Value))

		annotationDecls = append(annotationDecls, value.Static(ad))
	}

	m.Fields.Set("Groups", value.Sequence(groupDecls))
	m.Fields.Set("Fields", value.Sequence(fieldDecls))
	m.Fields.Set("TypeDefs", value.Sequence(typeDefDecls))
	m.Fields.Set("Annotations", value.Sequence(annotationDecls))

	return compact.Encode(selfRegistry, selfGroup("SchemaUpdate"), m, rec)
}
