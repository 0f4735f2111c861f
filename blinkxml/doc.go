// Package blinkxml implements Blink's XML interchange codec. Group local
// names become element names, the Blink namespace literal becomes the
// element's XML namespace URI, and extension messages are wrapped in
// elements from the fixed "blink" namespace. It is built directly on the
// standard library encoding/xml token stream (xml.Encoder/xml.Decoder):
// no third-party XML serialization library appears anywhere in the
// retrieved corpus for this codec to ground on.
package blinkxml
