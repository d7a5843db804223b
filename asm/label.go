package asm

// InstrSize is the width in bytes of one instruction on every supported
// architecture.
const InstrSize = 4

// LabelState is the state of a Label.
type LabelState uint8

// Label states.
const (
	LabelUnused LabelState = iota
	LabelLinked
	LabelBound
)

func (s LabelState) String() string {
	switch s {
	case LabelUnused:
		return "unused"
	case LabelLinked:
		return "linked"
	case LabelBound:
		return "bound"
	default:
		return "invalid"
	}
}

// Label is a branch target placeholder.
//
// While linked, pos is the buffer offset of the most recent unresolved
// reference. Older references are chained through the displacement fields
// of the branch instructions themselves: each reference stores the
// distance, in instructions, back to the previous reference, and zero
// terminates the chain.
type Label struct {
	state LabelState
	pos   int
}

// NewLabel returns an unused label.
func NewLabel() *Label {
	return &Label{}
}

// State returns the label state.
func (l *Label) State() LabelState { return l.state }

// IsUnused reports whether the label has neither references nor a binding.
func (l *Label) IsUnused() bool { return l.state == LabelUnused }

// IsLinked reports whether the label has unresolved references.
func (l *Label) IsLinked() bool { return l.state == LabelLinked }

// IsBound reports whether the label has been bound.
func (l *Label) IsBound() bool { return l.state == LabelBound }

// Position returns the bound position, or the position of the most recent
// unresolved reference while linked.
func (l *Label) Position() int {
	Assert(!l.IsUnused(), "position of unused label")
	return l.pos
}

// LinkTo makes pos the head of the reference chain.
func (l *Label) LinkTo(pos int) {
	Assert(!l.IsBound(), "linking bound label")
	Assert(pos >= 0, "negative link position %d", pos)
	l.state = LabelLinked
	l.pos = pos
}

// BindTo binds the label to pos. A label can be bound exactly once.
func (l *Label) BindTo(pos int) {
	Assert(!l.IsBound(), "label bound twice")
	Assert(!l.IsLinked(), "binding label with pending references")
	l.state = LabelBound
	l.pos = pos
}

// LinkReference records a new unresolved reference at pos and returns the
// chain value to embed in its displacement field.
func (l *Label) LinkReference(pos int) uint32 {
	Assert(!l.IsBound(), "linking bound label")
	var link uint32
	if l.IsLinked() {
		Assert(pos > l.pos, "references must be emitted in order")
		link = uint32((pos - l.pos) / InstrSize)
	}
	l.LinkTo(pos)
	return link
}

// Resolve walks every unresolved reference, newest first, calling patch for
// each one. patch must rewrite the reference to target boundPos and return
// the chain value that was stored in it. The label is then bound.
func (l *Label) Resolve(boundPos int, patch func(pos int) (link uint32)) {
	Assert(!l.IsBound(), "label bound twice")
	for l.IsLinked() {
		pos := l.pos
		link := patch(pos)
		if link == 0 {
			l.state = LabelUnused
			break
		}
		l.pos = pos - int(link)*InstrSize
		Assert(l.pos >= 0, "corrupt label chain at %d", pos)
	}
	l.BindTo(boundPos)
}

// Verify panics if the label still has unresolved references. It stands in
// for the destructor check: a label must not be dropped while linked.
func (l *Label) Verify() {
	Assert(!l.IsLinked(), "label dropped with unresolved references at %d", l.pos)
}
