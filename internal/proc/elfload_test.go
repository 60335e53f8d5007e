package proc_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kernelx/internal/defs"
	"kernelx/internal/mem"
	"kernelx/internal/proc"
	"kernelx/internal/vm"
)

const emRiscv = 243

// buildMinimalELF hand-assembles a valid ELF64/little-endian/EM_RISCV
// ET_EXEC image with a single PT_LOAD segment carrying codeBytes at
// vaddr, entry == vaddr. debug/elf has no encoder, so the test builds
// the wire format directly the same way a linker would.
func buildMinimalELF(t *testing.T, vaddr uint64, codeBytes []byte) []byte {
	t.Helper()
	const ehdrSize = 64
	const phdrSize = 56

	var buf bytes.Buffer
	ident := [16]byte{0x7f, 'E', 'L', 'F', 2 /*64-bit*/, 1 /*LSB*/, 1 /*version*/}
	buf.Write(ident[:])

	phoff := uint64(ehdrSize)
	dataOff := uint64(ehdrSize + phdrSize)

	write := func(v any) { binary.Write(&buf, binary.LittleEndian, v) }
	write(uint16(2))        // e_type = ET_EXEC
	write(uint16(emRiscv))  // e_machine
	write(uint32(1))        // e_version
	write(uint64(vaddr))    // e_entry
	write(phoff)            // e_phoff
	write(uint64(0))        // e_shoff
	write(uint32(0))        // e_flags
	write(uint16(ehdrSize)) // e_ehsize
	write(uint16(phdrSize)) // e_phentsize
	write(uint16(1))        // e_phnum
	write(uint16(0))        // e_shentsize
	write(uint16(0))        // e_shnum
	write(uint16(0))        // e_shstrndx

	require.Equal(t, ehdrSize, buf.Len())

	write(uint32(1))               // p_type = PT_LOAD
	write(uint32(5))                // p_flags = R|X
	write(dataOff)                  // p_offset
	write(vaddr)                    // p_vaddr
	write(vaddr)                    // p_paddr
	write(uint64(len(codeBytes)))   // p_filesz
	write(uint64(len(codeBytes)))   // p_memsz
	write(uint64(0x1000))           // p_align

	require.Equal(t, int(dataOff), buf.Len())
	buf.Write(codeBytes)

	return buf.Bytes()
}

type byteReaderAt struct{ b []byte }

func (r byteReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(r.b)) {
		return 0, io.EOF
	}
	n := copy(p, r.b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func TestLoadExecutableMapsPTLoadAndReturnsEntry(t *testing.T) {
	const vaddr = 0x1000
	code := bytes.Repeat([]byte{0x13, 0x00, 0x00, 0x00}, 4) // a few NOPs
	img := buildMinimalELF(t, vaddr, code)

	alloc := mem.New(mem.Frame(1), 8192, 1)
	as, err := vm.New(alloc)
	require.Zero(t, err)

	result, lerr := proc.LoadExecutable(alloc, as, byteReaderAt{img}, nil)
	require.Zero(t, lerr)
	assert.Equal(t, uintptr(vaddr), result.Entry)
	assert.False(t, result.Loaded)
	assert.Equal(t, 1, result.Phnum)

	var readBack [4]byte
	rerr := as.User2K(readBack[:], vaddr)
	require.Zero(t, rerr)
	assert.Equal(t, code[:4], readBack[:])
}

func TestLoadExecutableRejectsBadMagic(t *testing.T) {
	alloc := mem.New(mem.Frame(1), 4096, 1)
	as, err := vm.New(alloc)
	require.Zero(t, err)

	_, lerr := proc.LoadExecutable(alloc, as, byteReaderAt{[]byte("not an elf")}, nil)
	assert.Equal(t, defs.Errno(-defs.ENOEXEC), lerr)
}
