package util

import (
	"encoding/hex"
	"errors"
	"strings"
)

const (
	// getwork data 前 64 字节: version + prev block + merkle 前 28 字节
	headerPrefixBytes = 64

	blockPrefixStart = 56
	blockPrefixEnd   = 120

	merkleRootStart = 72
	merkleRootEnd   = 136
)

var (
	ErrUnalignedBuffer = errors.New("buffer is not 4-byte aligned")
	ErrShortWorkData   = errors.New("work data too short")
	ErrInvalidHex      = errors.New("work data is not hex")
)

// ByteReverse reverses the byte order of a hex string.
func ByteReverse(hexStr string) (string, error) {
	b, err := hex.DecodeString(Hex2clean(hexStr))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(reverseBytes(b)), nil
}

// WordReverse reverses the order of the 4-byte words in buf.
func WordReverse(buf []byte) ([]byte, error) {
	if len(buf)%4 != 0 {
		return nil, ErrUnalignedBuffer
	}

	out := make([]byte, len(buf))
	for i := 0; i < len(buf); i += 4 {
		j := len(buf) - 4 - i
		copy(out[j:j+4], buf[i:i+4])
	}
	return out, nil
}

// ExtractBlockPrefix returns the previous-block hash carried by getwork data,
// in display order. A change of this value means the network moved to a new
// block.
func ExtractBlockPrefix(data string) (string, error) {
	data = Hex2clean(data)
	if len(data) < headerPrefixBytes*2 {
		return "", ErrShortWorkData
	}

	raw, err := hex.DecodeString(data[:headerPrefixBytes*2])
	if err != nil {
		return "", err
	}
	reversed, err := WordReverse(raw)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(reversed)[blockPrefixStart:blockPrefixEnd], nil
}

// ExtractMerkleRoot returns the merkle root section of getwork data, the
// fingerprint used to correlate a submission with the work that was issued.
func ExtractMerkleRoot(data string) (string, error) {
	data = Hex2clean(data)
	if len(data) < merkleRootEnd {
		return "", ErrShortWorkData
	}
	root := strings.ToLower(data[merkleRootStart:merkleRootEnd])
	if !IsHex(root) {
		return "", ErrInvalidHex
	}
	return root, nil
}
