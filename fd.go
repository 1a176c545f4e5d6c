package busmessage

import "golang.org/x/sys/unix"

// closeFD releases a file descriptor owned by a Message that was dropped
// (Unref to zero) without ever being claimed via TakeFDs.
func closeFD(fd int) {
	_ = unix.Close(fd)
}
