// Package snapshot writes and reads prediction snapshot streams.
//
// A stream is an append-only file: a fixed header, one metadata frame shared
// by the run, then one frame per epoch record.
//
//	header: [Magic "ACTS"][Version u16][Flags u16][Compression u8][CodecLen u8][Codec]
//	frame:  [CRC32 u32][Length u32][Payload]
//
// The CRC covers the length field and the payload. Payloads are encoded with
// the codec named in the header and, unless compression is none, wrapped in
// a compressed block. Every Append is flushed and fsynced before it returns,
// so a crash can only ever tear the final frame; readers report a torn tail
// as ErrTruncated after yielding every complete record.
package snapshot
