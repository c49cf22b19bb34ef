package loaders

import (
	"fmt"
	"io"
	"os"
)

// BinaryLoader reads compiled SPIR-V.
type BinaryLoader struct{}

func (bl *BinaryLoader) Load(path string) (interface{}, error) {
	return LoadBinary(path)
}

// LoadBinary reads a SPIR-V file and checks its size and magic number.
func LoadBinary(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if len(buf) < 4 || len(buf)%4 != 0 {
		return nil, fmt.Errorf("%s: %d bytes is not a whole number of SPIR-V words", path, len(buf))
	}
	if BytesToBytecode(buf[:4])[0] != spirvMagic {
		return nil, fmt.Errorf("%s: not a SPIR-V module", path)
	}
	return buf, nil
}

const spirvMagic uint32 = 0x07230203

// BytesToBytecode reinterprets little endian bytes as SPIR-V words.
func BytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}
