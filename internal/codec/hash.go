package codec

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

func hashBytes(algo HashAlgorithm, data, userKey []byte) ([]byte, error) {
	switch algo {
	case HashNone:
		return nil, nil
	case HashCRC32:
		h := crc32.NewIEEE()
		h.Write(data)
		h.Write(userKey)
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], h.Sum32())
		return buf[:], nil
	case HashMD5:
		h := md5.New()
		h.Write(data)
		h.Write(userKey)
		return h.Sum(nil), nil
	case HashSHA1:
		h := sha1.New()
		h.Write(data)
		h.Write(userKey)
		return h.Sum(nil), nil
	default:
		return nil, fmt.Errorf("codec: unknown hash algorithm %d", algo)
	}
}
