package transport

import (
	"encoding/binary"
	"fmt"
)

const (
	// ChunkSize is the largest payload carried by one DataChannel message,
	// well below the 64 KiB message size every WebRTC stack accepts.
	ChunkSize = 16 * 1024

	// MaxMessageBytes bounds one reassembled screenshot message.
	MaxMessageBytes = 64 << 20

	// chunk header: message sequence, chunk index, chunk count.
	chunkHeaderLen = 12
)

// splitChunks frames data as ceil(len/size) chunks of one message. An empty
// message still yields one chunk.
func splitChunks(seq uint32, data []byte, size int) [][]byte {
	count := (len(data) + size - 1) / size
	if count == 0 {
		count = 1
	}
	chunks := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		end := min((i+1)*size, len(data))
		payload := data[i*size : end]

		frame := make([]byte, chunkHeaderLen+len(payload))
		binary.BigEndian.PutUint32(frame[0:4], seq)
		binary.BigEndian.PutUint32(frame[4:8], uint32(i))
		binary.BigEndian.PutUint32(frame[8:12], uint32(count))
		copy(frame[chunkHeaderLen:], payload)
		chunks = append(chunks, frame)
	}
	return chunks
}

// assembler rebuilds messages from chunks arriving in order on an ordered channel.
type assembler struct {
	active bool
	seq    uint32
	next   uint32
	count  uint32
	buf    []byte
}

// add consumes one chunk. It returns the message once its last chunk arrives.
// A broken sequence drops the partial message and reports an error.
func (a *assembler) add(frame []byte) ([]byte, bool, error) {
	if len(frame) < chunkHeaderLen {
		a.reset()
		return nil, false, fmt.Errorf("short chunk of %d bytes", len(frame))
	}
	seq := binary.BigEndian.Uint32(frame[0:4])
	index := binary.BigEndian.Uint32(frame[4:8])
	count := binary.BigEndian.Uint32(frame[8:12])
	payload := frame[chunkHeaderLen:]

	if count == 0 || index >= count || uint64(count)*ChunkSize > MaxMessageBytes+ChunkSize {
		a.reset()
		return nil, false, fmt.Errorf("invalid chunk %d/%d of message %d", index, count, seq)
	}

	if index == 0 {
		a.reset()
		a.active, a.seq, a.count = true, seq, count
	} else if !a.active || seq != a.seq || index != a.next || count != a.count {
		a.reset()
		return nil, false, fmt.Errorf("chunk %d/%d of message %d out of sequence", index, count, seq)
	}

	if len(a.buf)+len(payload) > MaxMessageBytes {
		a.reset()
		return nil, false, fmt.Errorf("message %d exceeds %d bytes", seq, MaxMessageBytes)
	}
	a.buf = append(a.buf, payload...)
	a.next++

	if a.next < a.count {
		return nil, false, nil
	}
	msg := a.buf
	a.buf = nil
	a.reset()
	return msg, true, nil
}

func (a *assembler) reset() {
	a.active = false
	a.seq, a.next, a.count = 0, 0, 0
	a.buf = a.buf[:0]
}
