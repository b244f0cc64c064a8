// Package protocol implements the DittoWire binary framing.
//
// Request frame (client → server), all integers big-endian:
//
//	[headerLength:u32][bodyLength:u32][headerBytes][bodyBytes]
//
//	headerBytes := [pathLength:u16][path][headerCount:u16]{[keyLen:u16][key][valLen:u16][value]}*
//
// Response frame (server → client):
//
//	[statusCode:i32][bodyLength:i32][body]
//
// A request frame always occupies exactly 8 + headerLength + bodyLength bytes
// on the wire. Every length field is the exact byte count of the field that
// immediately follows it.
//
// Decoding is incremental: an Accumulator can be fed arbitrarily sized chunks
// straight from a socket read and reports when a complete frame has been
// reassembled. The accumulator refuses frames larger than its configured
// maximum before allocating anything for them.
package protocol
