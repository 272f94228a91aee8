package graphics

import (
	"errors"
	"sync"
)

var (
	ErrDeleted       = errors.New("graphics: object deleted")
	ErrScreen        = errors.New("graphics: operation not allowed on the screen")
	ErrInvalidParent = errors.New("graphics: parent cannot hold children")
	ErrNoText        = errors.New("graphics: object has no text")
	ErrInvalidKind   = errors.New("graphics: unknown object kind")
)

// Kind is the type of a widget.
type Kind uint8

const (
	KindScreen Kind = iota
	KindContainer
	KindLabel
	KindButton
)

func (k Kind) String() string {
	switch k {
	case KindScreen:
		return "screen"
	case KindContainer:
		return "container"
	case KindLabel:
		return "label"
	case KindButton:
		return "button"
	default:
		return "unknown"
	}
}

func (k Kind) hasText() bool {
	return k == KindLabel || k == KindButton
}

func (k Kind) hasChildren() bool {
	return k == KindScreen || k == KindContainer || k == KindButton
}

// Object is a node of the widget tree. Guests never see it directly; they
// hold a handle issued by the bindings.
type Object struct {
	parent   *Object
	text     string
	children []*Object
	kind     Kind
	deleted  bool
}

// Kind returns the widget type.
func (o *Object) Kind() Kind {
	return o.kind
}

// Toolkit owns the widget tree. All methods other than Lock, Unlock and
// Render must be called with the lock held.
type Toolkit struct {
	screen *Object
	title  string
	mu     sync.Mutex
	count  int
}

// New creates a toolkit with an empty screen.
func New(title string) *Toolkit {
	return &Toolkit{
		screen: &Object{kind: KindScreen},
		title:  title,
		count:  1,
	}
}

// Lock acquires the toolkit for a sequence of operations.
func (t *Toolkit) Lock() {
	t.mu.Lock()
}

// Unlock releases the toolkit.
func (t *Toolkit) Unlock() {
	t.mu.Unlock()
}

// Screen returns the root object.
func (t *Toolkit) Screen() *Object {
	return t.screen
}

// Len returns the number of live objects, the screen included.
func (t *Toolkit) Len() int {
	return t.count
}

// CreateObject adds a widget under parent.
func (t *Toolkit) CreateObject(kind Kind, parent *Object) (*Object, error) {
	switch kind {
	case KindContainer, KindLabel, KindButton:
	case KindScreen:
		return nil, ErrScreen
	default:
		return nil, ErrInvalidKind
	}
	if parent == nil || parent.deleted {
		return nil, ErrDeleted
	}
	if !parent.kind.hasChildren() {
		return nil, ErrInvalidParent
	}

	o := &Object{kind: kind, parent: parent}
	parent.children = append(parent.children, o)
	t.count++
	return o, nil
}

// DeleteObject removes o and its subtree and returns every removed
// object, o first.
func (t *Toolkit) DeleteObject(o *Object) ([]*Object, error) {
	if o == nil || o.deleted {
		return nil, ErrDeleted
	}
	if o == t.screen {
		return nil, ErrScreen
	}

	p := o.parent
	for i, c := range p.children {
		if c == o {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}

	var removed []*Object
	var walk func(*Object)
	walk = func(n *Object) {
		n.deleted = true
		removed = append(removed, n)
		for _, c := range n.children {
			walk(c)
		}
		n.children = nil
		n.parent = nil
	}
	walk(o)
	t.count -= len(removed)
	return removed, nil
}

// SetText sets the text of a label or button.
func (t *Toolkit) SetText(o *Object, text string) error {
	if o == nil || o.deleted {
		return ErrDeleted
	}
	if !o.kind.hasText() {
		return ErrNoText
	}
	o.text = text
	return nil
}

// Text returns the text of a label or button.
func (t *Toolkit) Text(o *Object) (string, error) {
	if o == nil || o.deleted {
		return "", ErrDeleted
	}
	if !o.kind.hasText() {
		return "", ErrNoText
	}
	return o.text, nil
}

// Children returns a copy of the direct children of o.
func (t *Toolkit) Children(o *Object) ([]*Object, error) {
	if o == nil || o.deleted {
		return nil, ErrDeleted
	}
	return append([]*Object(nil), o.children...), nil
}

// Parent returns the parent of o, nil for the screen.
func (t *Toolkit) Parent(o *Object) (*Object, error) {
	if o == nil || o.deleted {
		return nil, ErrDeleted
	}
	return o.parent, nil
}
