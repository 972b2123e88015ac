// Package posw supplies the PoSW verifier and block assembly primitives the
// operator core treats as pure functions (spec: out of scope, consumed only
// through this interface). The hashing here is TOS Hash V3's memory-hard
// scratchpad mix, the same construction the teacher used for its own share
// verification.
package posw

import (
	"encoding/binary"

	"github.com/tos-network/tos-pool/internal/chain"
	"github.com/tos-network/tos-pool/internal/util"
	"github.com/zeebo/blake3"
)

const (
	memorySize    = 8192
	mixingRounds  = 8
	memoryPasses  = 4
	mixConstant   = 0x517cc1b727220a95
	inputSize     = 112
	nonceOffset   = 40
)

var strides = [4]int{1, 64, 256, 1024}

// BaseShareDifficulty is floor(u64_max / 5), the starting target assigned to
// every prover before any retargeting.
const BaseShareDifficulty = ^uint64(0) / 5

// buildInput folds (height, headerRoot, nonce, proof) into the 112-byte
// scratchpad-mix input, mirroring the MinerWork layout: work_hash(32) +
// timestamp(8) + nonce(8) + extra(32) + miner(32).
func buildInput(height uint64, headerRoot [32]byte, nonce chain.Nonce, proof chain.Proof) []byte {
	seed := blake3.New()
	var heightBuf [8]byte
	binary.BigEndian.PutUint64(heightBuf[:], height)
	seed.Write(heightBuf[:])
	seed.Write(headerRoot[:])
	seed.Write(proof)
	workHash := seed.Sum(nil)

	input := make([]byte, inputSize)
	copy(input[0:32], workHash)
	binary.BigEndian.PutUint64(input[nonceOffset:nonceOffset+8], uint64(nonce))
	return input
}

func hash(input []byte) []byte {
	scratchpad := stage1Init(input)
	stage2Mix(scratchpad)
	stage3Strided(scratchpad)
	return stage4Finalize(scratchpad)
}

func stage1Init(input []byte) []uint64 {
	scratchpad := make([]uint64, memorySize)

	hasher := blake3.New()
	hasher.Write(input)
	seed := hasher.Sum(nil)

	var state [4]uint64
	for i := 0; i < 4; i++ {
		state[i] = binary.LittleEndian.Uint64(seed[i*8 : (i+1)*8])
	}

	for i := 0; i < memorySize; i++ {
		idx := i % 4
		state[idx] = mix(state[idx], state[(idx+1)%4], i)
		scratchpad[i] = state[idx]
	}
	return scratchpad
}

func stage2Mix(scratchpad []uint64) {
	for pass := 0; pass < memoryPasses; pass++ {
		if pass%2 == 0 {
			carry := scratchpad[memorySize-1]
			for i := 0; i < memorySize; i++ {
				prev := scratchpad[memorySize-1]
				if i > 0 {
					prev = scratchpad[i-1]
				}
				scratchpad[i] = mix(scratchpad[i], prev^carry, pass)
				carry = scratchpad[i]
			}
		} else {
			carry := scratchpad[0]
			for i := memorySize - 1; i >= 0; i-- {
				next := scratchpad[0]
				if i < memorySize-1 {
					next = scratchpad[i+1]
				}
				scratchpad[i] = mix(scratchpad[i], next^carry, pass)
				carry = scratchpad[i]
			}
		}
	}
}

func stage3Strided(scratchpad []uint64) {
	for round := 0; round < mixingRounds; round++ {
		stride := strides[round%len(strides)]
		for i := 0; i < memorySize; i++ {
			j := (i + stride) % memorySize
			k := (i + stride*2) % memorySize
			a, b, c := scratchpad[i], scratchpad[j], scratchpad[k]
			scratchpad[i] = mix(a, b^c, round)
		}
	}
}

func mix(a, b uint64, round int) uint64 {
	rot := uint((round * 7) % 64)
	x := a + b
	y := a ^ rotateLeft(b, rot)
	z := x * mixConstant
	return z ^ rotateRight(y, rot/2)
}

func rotateLeft(x uint64, k uint) uint64 {
	k &= 63
	return (x << k) | (x >> (64 - k))
}

func rotateRight(x uint64, k uint) uint64 {
	k &= 63
	return (x >> k) | (x << (64 - k))
}

func stage4Finalize(scratchpad []uint64) []byte {
	var folded [4]uint64
	for i := 0; i < memorySize; i++ {
		folded[i%4] ^= scratchpad[i]
	}
	var buf [32]byte
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint64(buf[i*8:(i+1)*8], folded[i])
	}
	hasher := blake3.New()
	hasher.Write(buf[:])
	return hasher.Sum(nil)
}

// Verify checks whether proof, over (height, headerRoot, nonce), meets the
// target difficulty. Pure function: no side effects, safe to call from any
// worker-pool goroutine.
func Verify(height uint64, difficulty uint64, headerRoot [32]byte, nonce chain.Nonce, proof chain.Proof) bool {
	if difficulty == 0 {
		return false
	}
	h := hash(buildInput(height, headerRoot, nonce, proof))
	return util.HashMeetsDifficulty(h, difficulty)
}

// TryAssembleBlock builds a block header and block from a template and a
// winning (nonce, proof) pair, but only if the proof also meets the harder
// network difficulty. Returning ok=false is the common case, not an error:
// most credited shares meet only the easier share difficulty.
func TryAssembleBlock(tmpl *chain.BlockTemplate, nonce chain.Nonce, proof chain.Proof, networkDifficulty uint64) (*chain.Block, bool) {
	h := hash(buildInput(tmpl.Height, tmpl.HeaderRoot, nonce, proof))
	if !util.HashMeetsDifficulty(h, networkDifficulty) {
		return nil, false
	}

	header := chain.BlockHeader{
		PreviousLedgerRoot: tmpl.PreviousLedgerRoot,
		TransactionsRoot:   tmpl.TransactionsRoot(),
		Height:             tmpl.Height,
		Timestamp:          tmpl.Timestamp,
		Nonce:              nonce,
		Proof:              proof,
	}

	var hashArr [32]byte
	copy(hashArr[:], h)

	block := &chain.Block{
		Height:            tmpl.Height,
		Hash:              hashArr,
		PreviousBlockHash: tmpl.PreviousBlockHash,
		Header:            header,
		Transactions:      tmpl.Transactions,
	}
	return block, true
}
