package util

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

var (
	Pow32  = math.BigPow(2, 32)
	Pow256 = math.BigPow(2, 256)

	// Diff1Target 难度为1时的目标值 (0x00000000ffff0000...)
	Diff1Target = new(big.Int).Lsh(big.NewInt(0xffff), 208)
)

// Hex2clean 清理十六进制数字多余字符
func Hex2clean(hexStr string) string {
	return strings.TrimPrefix(strings.TrimPrefix(hexStr, "0x"), "0X")
}

// Target2diff converts a getwork target (256-bit little-endian hex) into a
// share difficulty. An empty, zero or oversized target yields 0.
func Target2diff(targetHex string) float64 {
	targetBytes := common.FromHex(targetHex)
	if len(targetBytes) == 0 {
		return 0
	}

	target := new(big.Int).SetBytes(reverseBytes(targetBytes))
	if target.Sign() == 0 || target.Cmp(Pow256) >= 0 {
		return 0
	}

	diff, _ := new(big.Float).Quo(new(big.Float).SetInt(Diff1Target), new(big.Float).SetInt(target)).Float64()
	return diff
}

// SharesToHashrate 将难度1的份额数换算为 MH/s
func SharesToHashrate(shares uint64, seconds float64) float64 {
	hashes := new(big.Float).Mul(new(big.Float).SetUint64(shares), new(big.Float).SetInt(Pow32))
	rate, _ := hashes.Quo(hashes, big.NewFloat(seconds*1e6)).Float64()
	return rate
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}
