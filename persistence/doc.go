// Package persistence implements the on-disk format of managed acton stores.
//
// A store file is a fixed header followed by a single payload block:
//
//	[magic u32 "ACTN"][version u16][compression u8][reserved u8]
//	[payload length u64][checksum u32][reserved u32]
//	[payload]
//
// The checksum is a CRC32 (IEEE) over the stored payload bytes. The payload
// is a compress block (see internal/compress) whose decoded form is a
// sequence of named sections:
//
//	[section count u16]
//	repeat:
//	  [name len u16][name][dtype len u8][dtype][rank u8][dims u64 x rank]
//	  [data len u64][data]
//
// The "attrs" section has an empty dtype and rank 0; its data is the
// codec-encoded Attrs. Every other section is a dense little-endian array.
//
// All integers are little-endian.
package persistence
