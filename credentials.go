package busmessage

import "golang.org/x/sys/unix"

// Credentials are the sender credentials optionally attached to a
// received Message (spec §3 "Credentials (received only)"). The codec
// never populates these itself — FromBuffer accepts them from whatever
// transport-level mechanism obtained them (SCM_CREDENTIALS on Linux,
// getsockopt(SO_PEERCRED), etc.) — but defines the shape so callers don't
// each invent their own.
type Credentials struct {
	HasUID bool
	UID    uint32
	HasGID bool
	GID    uint32
	HasPID bool
	PID    uint32
	HasTID bool
	TID    uint32
}

// CredentialsFromUcred builds Credentials from the uid/gid/pid triple a
// Linux AF_UNIX peer credential lookup (SO_PEERCRED) returns as
// golang.org/x/sys/unix.Ucred. TID and the LSM security label aren't part
// of SO_PEERCRED and are left unset; a caller with access to them (e.g.
// via SO_PEERSEC or /proc/<pid>/task) can set Credentials.HasTID/TID and
// pass the label separately to FromBuffer.
func CredentialsFromUcred(u *unix.Ucred) Credentials {
	if u == nil {
		return Credentials{}
	}
	return Credentials{
		HasUID: true,
		UID:    u.Uid,
		HasGID: true,
		GID:    u.Gid,
		HasPID: true,
		PID:    uint32(u.Pid),
	}
}
