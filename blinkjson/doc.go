// Package blinkjson implements Blink's JSON interchange codec: message
// objects keyed by "$type"/"$extension", built on package registry and
// package value. It uses the standard library encoding/json for tokenizing
// and number formatting; the codec owns value-level semantics (the large-
// integer string threshold, float specials, binary-vs-UTF-8 detection)
// on top of it.
package blinkjson
