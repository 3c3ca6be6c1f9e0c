package copyengine

import (
	"os"
	"os/user"
	"strconv"
)

// amRoot and inGroup gate ownership changes the same way the teacher's
// setUid does: an unprivileged process can only ever chown to a group it
// is already a member of, and never to another uid at all. Attempting a
// chown outside that envelope just fails with EPERM, so --owner/--group
// under an unprivileged invocation degrades to a no-op on the entries it
// can't touch rather than aborting the transfer.
var amRoot = os.Getuid() == 0

var inGroup = func() map[uint32]bool {
	m := make(map[uint32]bool)
	u, err := user.Current()
	if err != nil {
		return m
	}
	gids, err := u.GroupIds()
	if err != nil {
		return m
	}
	for _, gidString := range gids {
		gid, err := strconv.ParseInt(gidString, 0, 64)
		if err != nil {
			continue
		}
		m[uint32(gid)] = true
	}
	return m
}()
