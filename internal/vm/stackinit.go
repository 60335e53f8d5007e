package vm

import (
	"crypto/rand"
	"encoding/binary"

	"kernelx/internal/arch"
	"kernelx/internal/defs"
	"kernelx/internal/mem"
)

// Auxiliary vector keys populated by UserStackInit (design §6).
const (
	AtNull   = 0
	AtPhdr   = 3
	AtPhent  = 4
	AtPhnum  = 5
	AtPagesz = 6
	AtBase   = 7
	AtFlags  = 8
	AtEntry  = 9
	AtRandom = 25
)

// AuxVal is one (key, value) pair of the auxiliary vector.
type AuxVal struct {
	Key uint64
	Val uint64
}

func roundDown16(v uintptr) uintptr { return v &^ 15 }

// UserStackInit materializes the initial stack image (bottom to top:
// argc, argv pointers, NULL, envp pointers, NULL, auxv pairs, NULL
// pair; strings stored above) and maps the backing UserStack area, per
// design §4.2 and the layout in §6. AT_RANDOM is filled with 16 bytes
// of kernel-sourced randomness and added to auxv automatically.
func UserStackInit(as *AddressSpace, argv, envp []string, auxv []AuxVal) (uintptr, defs.Errno) {
	base := StackTop - uintptr(StackMaxPage)*mem.PageSize
	as.areas.MapArea(base, NewUserStack(as.alloc, base, StackMaxPage, arch.PteR|arch.PteW))

	sp := StackTop

	var randbuf [16]byte
	rand.Read(randbuf[:])
	sp -= 16
	sp = roundDown16(sp)
	randAddr := sp
	if err := as.K2User(randAddr, randbuf[:]); err != 0 {
		return 0, err
	}

	writeStr := func(s string) uintptr {
		b := append([]byte(s), 0)
		sp -= uintptr(len(b))
		if err := as.K2User(sp, b); err != 0 {
			return 0
		}
		return sp
	}

	argvAddrs := make([]uintptr, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		argvAddrs[i] = writeStr(argv[i])
	}
	envpAddrs := make([]uintptr, len(envp))
	for i := len(envp) - 1; i >= 0; i-- {
		envpAddrs[i] = writeStr(envp[i])
	}

	auxv = append(auxv, AuxVal{Key: AtRandom, Val: uint64(randAddr)})

	nwords := 1 + len(argv) + 1 + len(envp) + 1 + 2*(len(auxv)+1)
	sp = roundDown16(sp - uintptr(nwords)*8)

	cursor := sp
	push := func(v uint64) defs.Errno {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		err := as.K2User(cursor, b[:])
		cursor += 8
		return err
	}

	if err := push(uint64(len(argv))); err != 0 {
		return 0, err
	}
	for _, a := range argvAddrs {
		if err := push(uint64(a)); err != 0 {
			return 0, err
		}
	}
	if err := push(0); err != 0 {
		return 0, err
	}
	for _, a := range envpAddrs {
		if err := push(uint64(a)); err != 0 {
			return 0, err
		}
	}
	if err := push(0); err != 0 {
		return 0, err
	}
	for _, av := range auxv {
		if err := push(av.Key); err != 0 {
			return 0, err
		}
		if err := push(av.Val); err != 0 {
			return 0, err
		}
	}
	if err := push(AtNull); err != 0 {
		return 0, err
	}
	if err := push(0); err != 0 {
		return 0, err
	}

	return sp, 0
}
