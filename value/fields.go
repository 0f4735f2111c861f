package value

// Fields is an ordered name -> [Value] map. The decoders omit an absent
// optional field rather than storing [Absent], so Get's presence boolean
// reports whether the field was supplied.
type Fields struct {
	order []string
	m     map[string]Value
}

// NewFields returns an empty Fields container.
func NewFields() *Fields {
	return &Fields{m: map[string]Value{}}
}

// Set stores v under name, appending name to the declaration order the
// first time it is seen.
func (f *Fields) Set(name string, v Value) {
	if _, ok := f.m[name]; !ok {
		f.order = append(f.order, name)
	}

	f.m[name] = v
}

// Get returns the value stored under name, and whether it is present.
func (f *Fields) Get(name string) (Value, bool) {
	v, ok := f.m[name]
	return v, ok
}

// Names returns field names in declaration/insertion order.
func (f *Fields) Names() []string {
	return f.order
}

// Len returns the number of present fields.
func (f *Fields) Len() int {
	return len(f.order)
}
