package flist

// State is the "previous entry" cache maintained symmetrically by the
// writer and reader to drive cross-entry field compression (spec.md §3.2,
// component C4).
type State struct {
	PrevName       []byte
	PrevMode       uint32
	PrevMtime      int64
	PrevUID        uint32
	PrevGID        uint32
	PrevAtime      int64
	PrevRdevMajor  uint32
	PrevHardlinkDev int64
}

// NewState returns a zero-valued compression state, as used at the start
// of a file-list transmission.
func NewState() *State {
	return &State{}
}

// CalculateNamePrefixLen returns the longest common byte prefix between
// newName and the previously recorded name, capped at 255 because the
// prefix length is transmitted as a single byte (spec.md §4.4).
func (s *State) CalculateNamePrefixLen(newName []byte) int {
	max := len(s.PrevName)
	if len(newName) < max {
		max = len(newName)
	}
	if max > 255 {
		max = 255
	}
	n := 0
	for n < max && s.PrevName[n] == newName[n] {
		n++
	}
	return n
}

// Update records the common fields after a full entry has been written or
// read. Fields not covered here (atime, rdev_major, hardlink_dev) are
// updated via the dedicated Update* entry points below, mirroring the
// teacher's habit of small single-purpose mutators.
func (s *State) Update(name []byte, mode uint32, mtime int64, uid, gid uint32) {
	// Copy defensively: the caller's Name slice may be reused/mutated.
	nameCopy := make([]byte, len(name))
	copy(nameCopy, name)
	s.PrevName = nameCopy
	s.PrevMode = mode
	s.PrevMtime = mtime
	s.PrevUID = uid
	s.PrevGID = gid
}

func (s *State) UpdateAtime(atime int64) {
	s.PrevAtime = atime
}

func (s *State) UpdateRdevMajor(major uint32) {
	s.PrevRdevMajor = major
}

func (s *State) UpdateHardlinkDev(dev int64) {
	s.PrevHardlinkDev = dev
}
