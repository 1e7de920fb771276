// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mboxrpc

import (
	"encoding/binary"
	"fmt"
)

// Mailbox frame layout, little endian:
//
//	[0]      flags: bit 7 response, bits 0-1 call kind
//	[1:4]    reserved
//	[4:8]    command (server id << 16 | opcode)
//	[8:12]   payload length
//	[12:16]  result
//	[16:20]  correlation handle
//	[20:24]  sequence tag
//	[24:]    inline payload, or an 8-byte address when length > InlineCapacity
const (
	FrameSize      = 256
	headerSize     = 24
	InlineCapacity = FrameSize - headerSize

	flagResponse = 1 << 7
	kindMask     = 0x03
)

// Frame is the raw content of one mailbox slot.
type Frame [FrameSize]byte

func encodeFrame(rec *Record, f *Frame) {
	*f = Frame{}
	flags := byte(rec.Kind) & kindMask
	if rec.Direction == DirResponse {
		flags |= flagResponse
	}
	f[0] = flags
	binary.LittleEndian.PutUint32(f[4:8], uint32(rec.Command))
	binary.LittleEndian.PutUint32(f[8:12], uint32(rec.Len()))
	binary.LittleEndian.PutUint32(f[12:16], uint32(rec.Result))
	binary.LittleEndian.PutUint32(f[16:20], rec.Correlation.Handle)
	binary.LittleEndian.PutUint32(f[20:24], rec.Correlation.Seq)

	switch p := rec.Payload.(type) {
	case *Inline:
		copy(f[headerSize:], p.Bytes())
	case *OutOfBand:
		binary.LittleEndian.PutUint64(f[headerSize:headerSize+8], uint64(p.Region.Addr()))
	}
}

// decodeFrame rebuilds a record from a frame. Out-of-band payloads are
// resolved in mem rather than copied.
func decodeFrame(f *Frame, mem Memory) (Record, error) {
	rec := Record{
		Kind:    Kind(f[0] & kindMask),
		Command: Command(binary.LittleEndian.Uint32(f[4:8])),
		Result:  Status(int32(binary.LittleEndian.Uint32(f[12:16]))),
		Correlation: Correlation{
			Handle: binary.LittleEndian.Uint32(f[16:20]),
			Seq:    binary.LittleEndian.Uint32(f[20:24]),
		},
	}
	if f[0]&flagResponse != 0 {
		rec.Direction = DirResponse
	}

	// compare before converting: a huge length must not wrap negative on
	// 32-bit targets
	n32 := binary.LittleEndian.Uint32(f[8:12])
	if n32 > MaxPayloadLen {
		return rec, fmt.Errorf("%w: frame length %d", ErrInvalidLength, n32)
	}
	n := int(n32)
	switch {
	case n == 0:
	case n <= InlineCapacity:
		p := &Inline{n: n}
		copy(p.buf[:], f[headerSize:headerSize+n])
		rec.Payload = p
	default:
		addr := Addr(binary.LittleEndian.Uint64(f[headerSize : headerSize+8]))
		r, err := mem.Resolve(addr, n)
		if err != nil {
			return rec, err
		}
		rec.Payload = &OutOfBand{Region: r}
	}
	return rec, nil
}
