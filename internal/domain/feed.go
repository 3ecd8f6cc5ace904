package domain

// FeedEntry is one decoded feed row. It is one of SingleEntry, GroupEntry or
// UnknownEntry.
type FeedEntry interface {
	feedEntry()
}

// KudoStatus is the optional kudo block of a single activity entry.
type KudoStatus struct {
	HasKudoed bool
	CanKudo   bool
}

// SingleEntry is a feed row holding one activity.
type SingleEntry struct {
	Cursor  int64
	ID      string
	Name    string
	Athlete string
	Kudos   *KudoStatus
}

// GroupMember is one activity inside a group row.
type GroupMember struct {
	ID        string
	Name      string
	Athlete   string
	HasKudoed bool
	CanKudo   bool
}

// GroupEntry is a feed row holding several activities recorded together.
// All members share the row cursor.
type GroupEntry struct {
	Cursor  int64
	Members []GroupMember
}

// UnknownEntry is any row whose entity tag is not recognised.
type UnknownEntry struct {
	Entity string
}

func (SingleEntry) feedEntry()  {}
func (GroupEntry) feedEntry()   {}
func (UnknownEntry) feedEntry() {}
