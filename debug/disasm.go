package debug

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// DisassembleFault decodes the single instruction at the start of
// code — the bytes the HAL/paging fault path copied from the
// faulting EIP — for inclusion in a page-fault diagnostic, 32-bit
// mode per the core's x86-32 target.
func DisassembleFault(code []byte) string {
	inst, err := x86asm.Decode(code, 32)
	if err != nil {
		return fmt.Sprintf("<undecodable: %v>", err)
	}
	return x86asm.GNUSyntax(inst, 0, nil)
}
