// Package schema implements the Blink beta4 schema language: lexing and
// parsing of .blink source text into an untyped AST ([Parse]), and
// resolution of that AST into a frozen, immutable [Schema] ([Resolve]).
//
// # Concrete grammar
//
// spec.md leaves the exact .blink grammar implicit, illustrating it only
// through worked examples. This package implements the grammar the
// examples are drawn from:
//
//	namespace Demo
//
//	Address/1 -> string Street, string City, u32 ZipCode
//	Employee/2 -> string Name, u32 Age, Address HomeAddress
//	Manager/3 : Employee -> string Department, u32 TeamSize
//	Company/4 -> string CompanyName, Manager* CEO
//
//	enum Currency { USD, EUR = 5, GBP }
//	type Money = decimal
//
//	annotate Demo:Company.CEO @deprecated=true
//
// A group declaration is `Name[/typeId][ : Super] -> fields`, where fields
// is a comma-separated list of `Type fieldName[?]`. A trailing `*`
// immediately after a group-typed field's type name marks it as a
// [DynamicGroupRef] (the declared type or any descendant may appear on the
// wire) rather than a [StaticGroupRef] (exactly that type, embedded
// inline). This resolves spec.md's silence on how the two group-reference
// variants are distinguished in source text (see DESIGN.md).
//
// Inline annotations (`@key=value`) may follow a field or a group's field
// list; incremental annotations use a standalone `annotate QName @key=value`
// statement and are merged after inline annotations, in lexical order,
// with later values winning, per spec.md §4.3.
package schema
