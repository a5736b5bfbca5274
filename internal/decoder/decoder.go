// Package decoder checks frames received by remote clients.
package decoder

import "image"

// Decoder reads the geometry of an encoded frame.
type Decoder interface {
	Decode(data []byte) (image.Config, error)
}
