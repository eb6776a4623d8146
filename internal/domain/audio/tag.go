package audio

// TagType identifies the primitive type of a metadata value extracted from a
// stream by the rendering backend.
type TagType int

const (
	TagString TagType = iota
	TagUint
	TagInt
	TagDouble
	TagBoolean
)

// Tag is one key/value pair of stream metadata. Values arrive from the backend
// in string form regardless of type.
type Tag struct {
	Key   string
	Value string
	Type  TagType
}

// JSONValue returns the value as it appears in a StreamMetadataExtracted
// payload. Boolean tags become JSON booleans, everything else stays a string.
func (t Tag) JSONValue() any {
	if t.Type == TagBoolean {
		return t.Value == "true"
	}
	return t.Value
}
