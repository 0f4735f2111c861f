// Package goldenfixture loads YAML-table test fixtures shared by the Tag
// and JSON codec golden tests, so both packages exercise the same set of
// named cases against their respective wire text without duplicating the
// table in two places.
//
// Load parses a table of generic rows into caller-defined case structs;
// Save rewrites a table under -update-golden, mirroring the teacher's own
// golden-file update flag but applied to one table file instead of a
// single marshaled document.
package goldenfixture
