package decoder_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rvjit/core/core/decoder"
)

func encodeI(opcode, rd, funct3, rs1 uint32, imm int32) uint32 {
	return (uint32(imm)<<20)&0xFFFFF000 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func TestDecodeBasicBlockAddi(t *testing.T) {
	word := encodeI(0x13, 1, 0x0, 0, 5) // addi x1, x0, 5

	mem := []byte{
		byte(word), byte(word >> 8), byte(word >> 16), byte(word >> 24),
		0, 0, 0, 0, // trailing bytes outside the slice below: the stream ends right after the addi
	}

	bb, err := decoder.DecodeBasicBlock(mem[:4], 0x1000)
	require.NoError(t, err)

	require.Len(t, bb.Instructions, 1)
	require.Equal(t, decoder.OpAddi, bb.Instructions[0].Op)
	require.Equal(t, 1, bb.Instructions[0].Rd)
	require.Equal(t, 0, bb.Instructions[0].Rs1)
	require.Equal(t, int64(5), bb.Instructions[0].Imm)
	require.Equal(t, uint64(0x1004), bb.EndPC)
}

func TestDecodeBasicBlockStopsAtBranch(t *testing.T) {
	addi := encodeI(0x13, 1, 0x0, 0, 1)

	// beq x0, x0, 0: opcode 0x63, funct3 0, rs1=rs2=0, imm=0.
	beq := uint32(0x63)

	var buf []byte
	for _, w := range []uint32{addi, beq, addi} {
		buf = append(buf, byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
	}

	bb, err := decoder.DecodeBasicBlock(buf, 0x2000)
	require.NoError(t, err)

	require.Len(t, bb.Instructions, 2)
	require.Equal(t, decoder.OpBeq, bb.Instructions[1].Op)
	require.Equal(t, uint64(0x2008), bb.EndPC)
}

func TestDecodeBasicBlockTruncatedStreamErrors(t *testing.T) {
	_, err := decoder.DecodeBasicBlock([]byte{1, 2}, 0x3000)
	require.Error(t, err)
}
