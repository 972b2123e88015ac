package util

import "math/big"

var (
	// MaxTarget is the maximum target value (difficulty 1)
	// For TOS: 2^256 / difficulty
	MaxTarget = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	// Diff1Target is the difficulty 1 target
	Diff1Target = new(big.Int).SetBytes([]byte{
		0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	})
)

// DifficultyToTarget converts difficulty to target
func DifficultyToTarget(difficulty uint64) *big.Int {
	if difficulty == 0 {
		return MaxTarget
	}
	target := new(big.Int).Div(Diff1Target, big.NewInt(int64(difficulty)))
	return target
}

// HashMeetsTarget checks if hash meets the target difficulty
func HashMeetsTarget(hash []byte, target *big.Int) bool {
	if len(hash) != 32 {
		return false
	}
	hashInt := new(big.Int).SetBytes(hash)
	return hashInt.Cmp(target) <= 0
}

// HashMeetsDifficulty checks if hash meets the difficulty requirement
func HashMeetsDifficulty(hash []byte, difficulty uint64) bool {
	target := DifficultyToTarget(difficulty)
	return HashMeetsTarget(hash, target)
}
