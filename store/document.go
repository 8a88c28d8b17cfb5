package store

// DocumentMetadata describes a retrieval index attached to a thread. The
// in-memory index built from it is a derived, rebuildable cache; this record
// is the source of truth for "does this thread have a document".
type DocumentMetadata struct {
	ThreadID       string
	Filename       string
	DocumentsCount int
	ChunksCount    int
	// ArtifactPath is the file-system path of the persisted source artifact
	// the index can be rebuilt from.
	ArtifactPath string
	UploadedTs   int64
}

// FindDocumentMetadata filters document metadata lookups.
type FindDocumentMetadata struct {
	ThreadID *string
}
