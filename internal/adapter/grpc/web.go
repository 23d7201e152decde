package grpcadapter

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// grpc-Web frames a single message as a 1-byte flag ('\x00' for data,
// '\x80' for trailers) followed by a 4-byte big-endian length and the
// payload itself; "-text" variants base64-encode the whole framed stream.
const (
	frameHeaderSize  = 5
	trailerFrameFlag = 0x80
)

// DecodeWebFrame extracts the first data frame's payload from a grpc-web
// request body. textEncoded selects base64 decoding first, matching the
// application/grpc-web-text content type.
func DecodeWebFrame(body []byte, textEncoded bool) ([]byte, error) {
	if textEncoded {
		decoded, err := base64.StdEncoding.DecodeString(string(body))
		if err != nil {
			return nil, fmt.Errorf("grpcadapter: decode base64 grpc-web frame: %w", err)
		}
		body = decoded
	}
	if len(body) < frameHeaderSize {
		return nil, fmt.Errorf("grpcadapter: grpc-web frame shorter than header size")
	}
	flag := body[0]
	if flag&trailerFrameFlag != 0 {
		return nil, fmt.Errorf("grpcadapter: expected a data frame, got a trailer frame")
	}
	length := binary.BigEndian.Uint32(body[1:5])
	if uint32(len(body)-frameHeaderSize) < length {
		return nil, fmt.Errorf("grpcadapter: grpc-web frame length %d exceeds body", length)
	}
	return body[frameHeaderSize : frameHeaderSize+int(length)], nil
}

// EncodeWebFrame wraps payload as a single grpc-web data frame, followed by
// a synthesized trailer frame carrying grpc-status/grpc-message, matching
// the unary-only bridging the gateway supports (no server-streaming).
func EncodeWebFrame(payload []byte, grpcStatus int, grpcMessage string, textEncoded bool) []byte {
	out := make([]byte, 0, frameHeaderSize+len(payload))
	out = appendFrame(out, 0, payload)

	trailerBody := []byte(fmt.Sprintf("grpc-status: %d\r\ngrpc-message: %s\r\n", grpcStatus, grpcMessage))
	out = appendFrame(out, trailerFrameFlag, trailerBody)

	if textEncoded {
		encoded := base64.StdEncoding.EncodeToString(out)
		return []byte(encoded)
	}
	return out
}

func appendFrame(dst []byte, flag byte, payload []byte) []byte {
	header := make([]byte, frameHeaderSize)
	header[0] = flag
	binary.BigEndian.PutUint32(header[1:5], uint32(len(payload)))
	dst = append(dst, header...)
	dst = append(dst, payload...)
	return dst
}
