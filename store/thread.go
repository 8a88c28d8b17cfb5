package store

// DefaultThreadTitle is the title given to a thread before its first
// generated title.
const DefaultThreadTitle = "New Chat"

// Thread is the human-facing metadata of one conversation, independent of
// the raw checkpoint bytes.
type Thread struct {
	ID        string
	Title     string
	CreatedTs int64
	UpdatedTs int64
}

// FindThread is the filter for listing threads.
type FindThread struct {
	ID *string
}

// UpdateThread carries a partial thread update. Nil fields are left
// untouched.
type UpdateThread struct {
	ID        string
	Title     *string
	UpdatedTs *int64
}
