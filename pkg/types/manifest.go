package types

// EntryName is one path component (a file or folder name).
type EntryName string

// FsPath is a workspace-relative filesystem path: an ordered list of
// entry names from the workspace root.
type FsPath []EntryName

func (p FsPath) String() string {
	s := "/"
	for i, part := range p {
		if i > 0 {
			s += "/"
		}
		s += string(part)
	}
	return s
}

// BlockAccess describes one block of a file's content.
type BlockAccess struct {
	ID     BlockID
	Offset uint64
	Size   uint64
	Digest [32]byte
}

// FileManifest is the remote-agreed state of a file.
//
// Invariant: Blocks is sorted by Offset, blocks never overlap, each
// block lies fully inside its Blocksize span, and the sum of covered
// ranges never exceeds Size.
type FileManifest struct {
	ID        EntryID
	Parent    EntryID
	Created   DateTime
	Updated   DateTime
	Size      uint64
	Blocksize uint64
	Blocks    []BlockAccess
}

// FolderManifest is the remote-agreed state of a folder: a mapping
// from child name to child id.
//
// Invariant (parenting): the workspace root's Parent == its own ID;
// every other reachable manifest's Parent equals the id of the folder
// manifest whose Children contains it. Valid manifests therefore form
// a DAG rooted at the workspace root.
type FolderManifest struct {
	ID       EntryID
	Parent   EntryID
	Children map[EntryName]EntryID
	Created  DateTime
	Updated  DateTime
}

// WorkspaceManifest is an alias for the root FolderManifest of a
// realm: its ID equals RealmRootEntryID(realm) and its Parent equals
// its own ID.
type WorkspaceManifest = FolderManifest

// ManifestKind distinguishes file from folder manifests for code that
// holds a LocalManifest without static knowledge of which it wraps.
type ManifestKind int

const (
	ManifestKindFile ManifestKind = iota
	ManifestKindFolder
)

// LocalManifest wraps the remote-agreed manifest with the local
// bookkeeping needed before a change has synced back to the server.
type LocalManifest struct {
	Kind ManifestKind

	// File is non-nil iff Kind == ManifestKindFile.
	File *LocalFileManifest
	// Folder is non-nil iff Kind == ManifestKindFolder.
	Folder *LocalFolderManifest
}

func (m *LocalManifest) ID() EntryID {
	if m.Kind == ManifestKindFile {
		return m.File.Base.ID
	}
	return m.Folder.Base.ID
}

func (m *LocalManifest) Parent() EntryID {
	if m.Kind == ManifestKindFile {
		return m.File.Base.Parent
	}
	return m.Folder.Base.Parent
}

func (m *LocalManifest) Updated() DateTime {
	if m.Kind == ManifestKindFile {
		return m.File.UpdatedAt
	}
	return m.Folder.UpdatedAt
}

func (m *LocalManifest) NeedSync() bool {
	if m.Kind == ManifestKindFile {
		return m.File.NeedSync
	}
	return m.Folder.NeedSync
}

// LocalFileManifest wraps a FileManifest with local delta bookkeeping.
type LocalFileManifest struct {
	Base      FileManifest
	NeedSync  bool
	UpdatedAt DateTime
}

// LocalFolderManifest wraps a FolderManifest with local delta
// bookkeeping and confinement-point tracking.
//
// LocalConfinementPoints holds ids hidden from the remote manifest
// (see Confinement in the glossary): they participate in local
// filesystem operations but never sync upward.
// RemoteConfinementPoints mirrors what the last-fetched remote view
// considered confined, so a local prevent-sync pattern change doesn't
// retroactively rewrite history.
type LocalFolderManifest struct {
	Base                    FolderManifest
	NeedSync                bool
	UpdatedAt               DateTime
	Speculative             bool
	LocalConfinementPoints  map[EntryID]struct{}
	RemoteConfinementPoints map[EntryID]struct{}
}

// NewSpeculativeRoot synthesizes the local root manifest a freshly
// opened workspace uses before any server round trip: need_sync=true,
// speculative=true, parent=self, exactly as spec.md's ManifestCache
// policy requires.
func NewSpeculativeRoot(realm RealmID, now DateTime) *LocalManifest {
	root := RealmRootEntryID(realm)
	return &LocalManifest{
		Kind: ManifestKindFolder,
		Folder: &LocalFolderManifest{
			Base: FolderManifest{
				ID:       root,
				Parent:   root,
				Children: map[EntryName]EntryID{},
				Created:  now,
				Updated:  now,
			},
			NeedSync:                true,
			UpdatedAt:               now,
			Speculative:             true,
			LocalConfinementPoints:  map[EntryID]struct{}{},
			RemoteConfinementPoints: map[EntryID]struct{}{},
		},
	}
}
