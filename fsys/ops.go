package fsys

// Mkdir creates a new directory at path (whose parent must already
// exist) populated with "." and ".." entries, wrapped in its own log
// transaction.
func (fs *FS) Mkdir(path string, cwd *InodeHandle, holder int) error {
	fs.log.BeginOp()
	defer fs.log.EndOp()

	parent, name, err := fs.LookupParent(path, cwd, holder)
	if err != nil {
		return err
	}
	pli, err := parent.Ilock(holder)
	if err != nil {
		parent.Put()
		return err
	}

	dli, err := fs.Ialloc(parent.Dev(), TypeDir)
	if err != nil {
		pli.UnlockPut()
		return err
	}
	dli.SetNlink(1) // "." counts as a self-link
	if err := Dirlink(dli, ".", dli.ih.Inum(), holder); err != nil {
		dli.UnlockPut()
		pli.UnlockPut()
		return err
	}
	if err := Dirlink(dli, "..", parent.Inum(), holder); err != nil {
		dli.UnlockPut()
		pli.UnlockPut()
		return err
	}
	if err := dli.Iupdate(); err != nil {
		dli.UnlockPut()
		pli.UnlockPut()
		return err
	}

	if err := Dirlink(pli, name, dli.ih.Inum(), holder); err != nil {
		dli.UnlockPut()
		pli.UnlockPut()
		return err
	}
	pli.SetNlink(pli.Nlink() + 1) // ".." in the child bumps the parent's count
	if err := pli.Iupdate(); err != nil {
		dli.UnlockPut()
		pli.UnlockPut()
		return err
	}

	dli.UnlockPut()
	pli.UnlockPut()
	return nil
}

// Create makes a new TypeFile or TypeDev inode at path, linking it into
// its parent directory, and returns it locked (the common "open with
// O_CREATE" path).
func (fs *FS) Create(path string, typ uint16, major, minor uint16, cwd *InodeHandle, holder int) (*LockedInode, error) {
	fs.log.BeginOp()
	defer fs.log.EndOp()

	parent, name, err := fs.LookupParent(path, cwd, holder)
	if err != nil {
		return nil, err
	}
	pli, err := parent.Ilock(holder)
	if err != nil {
		parent.Put()
		return nil, err
	}
	defer pli.UnlockPut()

	if existing, _, err := Dirlookup(pli, name, holder); err == nil {
		existing.Put()
		return nil, ErrExists
	}

	li, err := fs.Ialloc(parent.Dev(), typ)
	if err != nil {
		return nil, err
	}
	li.initNew(typ, major, minor)
	li.SetNlink(1)
	if err := li.Iupdate(); err != nil {
		li.UnlockPut()
		return nil, err
	}
	if err := Dirlink(pli, name, li.ih.Inum(), holder); err != nil {
		li.UnlockPut()
		return nil, err
	}
	if err := pli.Iupdate(); err != nil {
		li.UnlockPut()
		return nil, err
	}
	return li, nil
}

// Ftruncate truncates an already-resolved inode to zero length and
// frees its data blocks, wrapped in its own log transaction (spec.md
// §6: O_TRUNC). The caller keeps its handle; only the sleep lock is
// taken and released here, the same as finalizeInode's own itrunc call.
func (fs *FS) Ftruncate(ih *InodeHandle, holder int) error {
	fs.log.BeginOp()
	defer fs.log.EndOp()

	li, err := ih.Ilock(holder)
	if err != nil {
		return err
	}
	defer li.Unlock()

	fs.itrunc(li.payload())
	return li.Iupdate()
}

// Link adds newPath as another name for the existing file at oldPath,
// bumping its nlink. The parent directory of newPath is resolved before
// the link count is touched, so the only failure that can happen after
// the bump is the directory write itself — at which point nlink is
// decremented back out before returning.
func (fs *FS) Link(oldPath, newPath string, cwd *InodeHandle, holder int) error {
	fs.log.BeginOp()
	defer fs.log.EndOp()

	target, err := fs.Lookup(oldPath, cwd, holder)
	if err != nil {
		return err
	}
	defer target.Put()

	parent, name, err := fs.LookupParent(newPath, cwd, holder)
	if err != nil {
		return err
	}
	pli, err := parent.Ilock(holder)
	if err != nil {
		parent.Put()
		return err
	}
	defer pli.UnlockPut()

	tli, err := target.Ilock(holder)
	if err != nil {
		return err
	}
	defer tli.Unlock()
	if tli.Type() == TypeDir {
		return ErrNotDir
	}

	tli.SetNlink(tli.Nlink() + 1)
	if err := tli.Iupdate(); err != nil {
		return err
	}
	err = Dirlink(pli, name, target.Inum(), holder)
	if err == nil {
		err = pli.Iupdate()
	}
	if err != nil {
		tli.SetNlink(tli.Nlink() - 1)
		tli.Iupdate()
		return err
	}
	return nil
}

// Unlink removes name from its parent directory and decrements the
// target's nlink; the inode is freed once its last reference drops and
// nlink reaches 0 (spec.md §4.D finalizer policy).
func (fs *FS) Unlink(path string, cwd *InodeHandle, holder int) error {
	fs.log.BeginOp()
	defer fs.log.EndOp()

	parent, name, err := fs.LookupParent(path, cwd, holder)
	if err != nil {
		return err
	}
	if name == "." || name == ".." {
		parent.Put()
		return ErrInvalidName
	}
	pli, err := parent.Ilock(holder)
	if err != nil {
		parent.Put()
		return err
	}
	defer pli.UnlockPut()

	target, off, err := Dirlookup(pli, name, holder)
	if err != nil {
		return err
	}
	defer target.Put()

	tli, err := target.Ilock(holder)
	if err != nil {
		return err
	}
	defer tli.Unlock()

	if tli.Type() == TypeDir {
		empty, err := isDirEmpty(tli, holder)
		if err != nil {
			return err
		}
		if !empty {
			return ErrDirNotEmpty
		}
	}

	zero := packDirEnt(0, "")
	if _, err := Writei(pli, zero, off); err != nil {
		return err
	}
	tli.SetNlink(tli.Nlink() - 1)
	return tli.Iupdate()
}
