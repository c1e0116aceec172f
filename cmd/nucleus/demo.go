// demo.go scripts a short, human-watchable tour of the syscall
// surface against the booted init process, driving syscall.Dispatch
// directly in place of a CPU fetching and executing init's
// instructions (this hosted simulator has no instruction execution
// path — see boot.go's loadInitImage doc comment).
package main

import (
	"fmt"

	"github.com/TorMartin-ops/nucleus/mem"
	"github.com/TorMartin-ops/nucleus/proc"
	nsyscall "github.com/TorMartin-ops/nucleus/syscall"
)

// stagePage returns the mapped user-stack page of p as a "userspace"
// scratch buffer the demo can write test data into before handing its
// address to Dispatch, along with the virtual address the buffer
// starts at. This plays the role a real program's own stack or data
// segment would: somewhere in user memory the kernel can read through
// uaccess.
func stagePage(k *Kernel, p *proc.PCB) (mem.Va_t, []byte) {
	va := proc.UserStackTopVirt - mem.Va_t(mem.PGSIZE)
	pa, _, _ := p.MM.AS.Walk(va)
	return va, k.FA.Dmap(pa)
}

// runDemoScript writes a greeting to init's stdout, creates a
// directory and a file through the filesystem syscalls, forks a
// child, exits the child with a distinct status, and waits for it,
// printing each step's result.
func runDemoScript(k *Kernel) error {
	p, t := k.Init, k.InitT
	va, page := stagePage(k, p)

	msg := "nucleus: hello from init\n"
	copy(page[0:], msg)
	n := nsyscall.Dispatch(k.SC, p, t, nsyscall.NrWrite, 1, uint32(va), uint32(len(msg)))
	fmt.Printf("write(1, \"hello\") = %d\n", n)

	copy(page[64:], "/greeting\x00")
	rc := nsyscall.Dispatch(k.SC, p, t, nsyscall.NrMkdir, uint32(va)+64, 0, 0)
	fmt.Printf("mkdir(/greeting) = %d\n", rc)

	copy(page[128:], "/greeting/note.txt\x00")
	fd := nsyscall.Dispatch(k.SC, p, t, nsyscall.NrOpen, uint32(va)+128, uint32(nsyscall.OCREAT|nsyscall.OWRONLY), 0)
	fmt.Printf("open(/greeting/note.txt, O_CREAT|O_WRONLY) = %d\n", fd)

	copy(page[256:], "hi there")
	nw := nsyscall.Dispatch(k.SC, p, t, nsyscall.NrWrite, uint32(fd), uint32(va)+256, 8)
	fmt.Printf("write(fd, \"hi there\") = %d\n", nw)

	closeRC := nsyscall.Dispatch(k.SC, p, t, nsyscall.NrClose, uint32(fd), 0, 0)
	fmt.Printf("close(fd) = %d\n", closeRC)

	childPID := nsyscall.Dispatch(k.SC, p, t, nsyscall.NrFork, 0, 0, 0)
	fmt.Printf("fork() = %d\n", childPID)
	if childPID <= 0 {
		return fmt.Errorf("demo: fork failed: errno %d", -childPID)
	}

	childTCB, ok := k.Sched.Lookup(childPID)
	if !ok {
		return fmt.Errorf("demo: child pid %d not found after fork", childPID)
	}
	k.Sched.RemoveCurrentTaskWithCode(childTCB, 7)
	fmt.Printf("child pid %d exited with status 7\n", childPID)

	statusVA := va + 512
	rv := nsyscall.Dispatch(k.SC, p, t, nsyscall.NrWaitpid, uint32(int32(-1)), uint32(statusVA), 0)
	status := int32(page[512]) | int32(page[513])<<8 | int32(page[514])<<16 | int32(page[515])<<24
	fmt.Printf("waitpid(-1, &status, 0) = %d, status = %d\n", rv, status)

	return nil
}
