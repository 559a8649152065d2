package device

import "github.com/nerrad567/coldtag-core/internal/optional"

// Update is a partial modification of a device. Unset fields are left alone.
type Update struct {
	Label   optional.Value[string]
	CoreID  optional.Value[int64]
	Deleted *bool
}

// IsEmpty reports whether the update names no field at all.
func (u Update) IsEmpty() bool {
	return !u.Label.IsSet() && !u.CoreID.IsSet() && u.Deleted == nil
}

// apply writes the update onto d. It enforces the mutation guards that do
// not need storage lookups and fails with ErrNoChange when d is left as it was.
func (u Update) apply(d *Device) error {
	if u.IsEmpty() {
		return ErrNoChange
	}
	if d.Deleted {
		return ErrDeviceDeleted
	}
	if u.CoreID.IsSet() && d.Kind != KindNode {
		return ErrNotANode
	}

	changed := false
	if u.Label.IsSet() && !optional.Equal(u.Label, d.Label) {
		d.Label = u.Label.Ptr()
		changed = true
	}
	if u.CoreID.IsSet() && !optional.Equal(u.CoreID, d.CoreID) {
		d.CoreID = u.CoreID.Ptr()
		changed = true
	}
	if u.Deleted != nil && *u.Deleted != d.Deleted {
		d.Deleted = *u.Deleted
		changed = true
	}

	if !changed {
		return ErrNoChange
	}
	return nil
}
