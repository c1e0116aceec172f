// group.go implements spec §4.16 (part of C6): process groups and
// sessions layered on the PID-keyed tables Table already holds,
// following spec §9's "pointer-graph ownership" design note rather
// than the raw linked-list biscuit's retrieved slice doesn't include.
package proc

import "github.com/TorMartin-ops/nucleus/errno"

// Setsid makes p a new session and process-group leader, per spec
// §4.16: refused for an existing session leader. Drops any controlling
// terminal the session previously had.
func (t *Table) Setsid(p *PCB) errno.Errno {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p.IsSessionLeader {
		return errno.EACCES
	}

	oldPGID := p.PGID
	if g := t.groups[oldPGID]; g != nil {
		delete(g, p.PID)
		if len(g) == 0 {
			delete(t.groups, oldPGID)
		}
	}

	p.SID = p.PID
	p.PGID = p.PID
	p.IsSessionLeader = true
	p.IsGroupLeader = true
	t.addToGroupLocked(p.PGID, p.PID)
	t.sessions[p.SID] = &sessionInfo{leader: p.PID}
	return errno.Ok
}

// Setpgid moves the process identified by pid into process group pgid
// within the caller's session, per spec §4.16: a session leader cannot
// be moved, and the target group must belong to the same session (a
// new group is created, led by pid, when pgid == pid and the group
// doesn't exist yet).
func (t *Table) Setpgid(pid, pgid int32) errno.Errno {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.procs[pid]
	if !ok {
		return errno.ESRCH
	}
	if p.IsSessionLeader {
		return errno.EACCES
	}
	if pgid == 0 {
		pgid = pid
	}

	if leaderPID, exists := t.groupSessionLocked(pgid); exists {
		leader, ok := t.procs[leaderPID]
		if ok && leader.SID != p.SID {
			return errno.EACCES
		}
	} else if pgid != pid {
		return errno.EACCES
	}

	if g := t.groups[p.PGID]; g != nil {
		delete(g, p.PID)
		if len(g) == 0 {
			delete(t.groups, p.PGID)
		}
	}
	p.PGID = pgid
	p.IsGroupLeader = pgid == pid
	t.addToGroupLocked(pgid, pid)
	return errno.Ok
}

// groupSessionLocked reports the SID any existing member of pgid
// belongs to, by returning one member's PID (group membership is
// uniform in SID by construction, so any member suffices).
func (t *Table) groupSessionLocked(pgid int32) (int32, bool) {
	g, ok := t.groups[pgid]
	if !ok || len(g) == 0 {
		return 0, false
	}
	for member := range g {
		return member, true
	}
	return 0, false
}

// TCSetPgrp sets the foreground process group on p's controlling
// terminal, per spec §4.16: only a session leader with a controlling
// terminal may do so, and pgid must name a group within the same
// session.
func (t *Table) TCSetPgrp(p *PCB, pgid int32) errno.Errno {
	t.mu.Lock()
	defer t.mu.Unlock()

	sess, ok := t.sessions[p.SID]
	if !ok || !p.IsSessionLeader || !sess.hasTTY {
		return errno.EACCES
	}
	if leaderPID, exists := t.groupSessionLocked(pgid); exists {
		if leader, ok := t.procs[leaderPID]; ok && leader.SID != p.SID {
			return errno.EACCES
		}
	}
	sess.ctrlFG = pgid
	return errno.Ok
}

// TCGetPgrp returns the foreground process group of p's session's
// controlling terminal, or (0, ESRCH) if the session has none.
func (t *Table) TCGetPgrp(p *PCB) (int32, errno.Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sess, ok := t.sessions[p.SID]
	if !ok || !sess.hasTTY {
		return 0, errno.ESRCH
	}
	return sess.ctrlFG, errno.Ok
}

// AttachControllingTTY marks p's session as having a controlling
// terminal and makes p's group the initial foreground group, the
// setup step a shell performs once after Setsid.
func (t *Table) AttachControllingTTY(p *PCB) errno.Errno {
	t.mu.Lock()
	defer t.mu.Unlock()

	sess, ok := t.sessions[p.SID]
	if !ok || !p.IsSessionLeader {
		return errno.EACCES
	}
	sess.hasTTY = true
	sess.ctrlFG = p.PGID
	return errno.Ok
}
