package metapost

import (
	"strings"
	"sync"
)

// DraftSnapshot is a copy of a draft's fields at one point in time.
type DraftSnapshot struct {
	Text    string
	Image   *Image
	Targets []Target
	Posting bool
}

// Has reports whether t is selected.
func (s DraftSnapshot) Has(t Target) bool {
	for _, selected := range s.Targets {
		if selected == t {
			return true
		}
	}
	return false
}

// Validate checks the submission rules: some content, at least one target,
// and an image whenever instagram is selected.
func (s DraftSnapshot) Validate() error {
	if strings.TrimSpace(s.Text) == "" && s.Image == nil {
		return ValidationError{Reason: "enter some content or select an image for your post"}
	}
	if len(s.Targets) == 0 {
		return ValidationError{Reason: "select at least one target"}
	}
	if s.Has(TargetInstagram) && s.Image == nil {
		return ValidationError{Provider: string(TargetInstagram), Reason: "an image is required for posting"}
	}
	return nil
}

// Draft is the post being composed. The posting flag gates re-entrant publishing.
type Draft struct {
	mu      sync.Mutex
	text    string
	image   *Image
	targets map[Target]bool
	posting bool
}

// NewDraft returns the default draft: no content, facebook selected.
func NewDraft() *Draft {
	d := &Draft{}
	d.reset()
	return d
}

func (d *Draft) reset() {
	d.text = ""
	d.image = nil
	d.targets = map[Target]bool{TargetFacebook: true}
	d.posting = false
}

// Reset discards the draft's content and selection.
func (d *Draft) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reset()
}

// Snapshot copies the draft.
func (d *Draft) Snapshot() DraftSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshot()
}

func (d *Draft) snapshot() DraftSnapshot {
	targets := make([]Target, 0, len(d.targets))
	for _, t := range Targets {
		if d.targets[t] {
			targets = append(targets, t)
		}
	}
	return DraftSnapshot{
		Text:    d.text,
		Image:   d.image,
		Targets: targets,
		Posting: d.posting,
	}
}

// SetText replaces the post text.
func (d *Draft) SetText(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = text
}

// SetImage attaches img. A nil image clears the attachment and deselects instagram.
func (d *Draft) SetImage(img *Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.image = img
	if img == nil {
		delete(d.targets, TargetInstagram)
	}
}

// ClearImage removes the attachment. Repeated calls are no-ops.
func (d *Draft) ClearImage() {
	d.SetImage(nil)
}

// Select toggles a target. Instagram can only be selected while an image is attached.
func (d *Draft) Select(t Target, on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !on {
		delete(d.targets, t)
		return nil
	}
	if t == TargetInstagram && d.image == nil {
		return ValidationError{Provider: string(TargetInstagram), Reason: "an image is required for posting"}
	}
	d.targets[t] = true
	return nil
}

// Posting reports whether a publish is in flight.
func (d *Draft) Posting() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.posting
}

// BeginPosting validates the draft and raises the posting flag.
func (d *Draft) BeginPosting() (DraftSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.posting {
		return DraftSnapshot{}, ErrPublishInProgress
	}
	snap := d.snapshot()
	if err := snap.Validate(); err != nil {
		return DraftSnapshot{}, err
	}
	d.posting = true
	snap.Posting = true
	return snap, nil
}

// FinishPosting clears the posting flag. On success the draft returns to its default.
func (d *Draft) FinishPosting(success bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if success {
		d.reset()
		return
	}
	d.posting = false
}

// AbortPosting clears the posting flag and keeps the content.
func (d *Draft) AbortPosting() {
	d.FinishPosting(false)
}
