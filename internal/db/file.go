package db

// Item is one node of a symbol file: a declaration, or a placeholder such as
// an unprocessed region. Children are owned by value so a Clone is a plain
// structural copy.
type Item struct {
	Kind ItemKind
	Name string

	// Path is the file the item was written in. Items reached through an
	// include inside a container keep the included file's path.
	Path    string
	Line    int
	EndLine int
	Pos     int

	// Super is the base class named by an extends clause.
	Super string

	// Enumerators holds the literal names of an enum typedef, in declaration order.
	Enumerators []Enumerator

	Children []Item
}

// Enumerator is one literal of an enum typedef.
type Enumerator struct {
	Name  string
	Value string
}

// Clone returns a deep copy of the item.
func (it Item) Clone() Item {
	out := it
	if it.Enumerators != nil {
		out.Enumerators = append([]Enumerator(nil), it.Enumerators...)
	}
	if it.Children != nil {
		out.Children = make([]Item, len(it.Children))
		for i, c := range it.Children {
			out.Children[i] = c.Clone()
		}
	}
	return out
}

// File is the symbol tree of one source file after preprocessing and parsing.
type File struct {
	Path  string
	Items []Item
}

// Clone returns a deep copy of the file.
func (f *File) Clone() *File {
	if f == nil {
		return nil
	}
	out := &File{Path: f.Path, Items: make([]Item, len(f.Items))}
	for i, it := range f.Items {
		out.Items[i] = it.Clone()
	}
	return out
}

// Find returns the first top-level item with the given kind and name.
func (f *File) Find(kind ItemKind, name string) *Item {
	if f == nil {
		return nil
	}
	for i := range f.Items {
		if f.Items[i].Kind == kind && f.Items[i].Name == name {
			return &f.Items[i]
		}
	}
	return nil
}

// ItemsOfKind returns the top-level items of the given kind.
func (f *File) ItemsOfKind(kind ItemKind) []Item {
	if f == nil {
		return nil
	}
	var out []Item
	for _, it := range f.Items {
		if it.Kind == kind {
			out = append(out, it)
		}
	}
	return out
}
