package core

// Point is a 2D coordinate used for pan offsets, freehand strokes and curve
// control points.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Element variant names as sent by clients.
const (
	ElementRectangle = "rectangle"
	ElementLine      = "line"
	ElementText      = "text"
	ElementPencil    = "pencil"
	ElementImage     = "image"
)

// Element is one drawing primitive. All variants share id, geometry and
// style fields; the remaining fields apply only to their variant.
type Element struct {
	ID   string `json:"id"`
	Type string `json:"type"`

	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`

	StrokeColor string  `json:"strokeColor,omitempty"`
	StrokeWidth float64 `json:"strokeWidth,omitempty"`
	Fill        string  `json:"fill,omitempty"`

	// line
	ControlPoint *Point `json:"controlPoint,omitempty"`

	// text
	Text       string   `json:"text,omitempty"`
	TextBreaks []string `json:"textBreaks,omitempty"`

	// pencil
	Points []Point `json:"points,omitempty"`

	// image
	URL         string  `json:"url,omitempty"`
	AspectRatio float64 `json:"aspectRatio,omitempty"`
}

// Board is the authoritative drawing content of one room.
type Board struct {
	Elements  []Element `json:"elements"`
	Scale     float64   `json:"scale"`
	PanOffset Point     `json:"panOffset"`
}

// UpsertElement replaces the element with the same id in place, or appends
// when the id is new. For image elements a server-resolved URL is sticky:
// an update that omits the URL keeps the stored one.
func (b *Board) UpsertElement(element Element) {
	for i, existing := range b.Elements {
		if existing.ID != element.ID {
			continue
		}
		if element.URL == "" && existing.URL != "" {
			element.URL = existing.URL
		}
		b.Elements[i] = element
		return
	}
	b.Elements = append(b.Elements, element)
}

// EraseElements removes every element whose id is in ids. Absent ids are
// ignored; relative order of the survivors is preserved.
func (b *Board) EraseElements(ids []string) {
	if len(ids) == 0 || len(b.Elements) == 0 {
		return
	}

	erase := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		erase[id] = struct{}{}
	}

	kept := b.Elements[:0]
	for _, element := range b.Elements {
		if _, gone := erase[element.ID]; !gone {
			kept = append(kept, element)
		}
	}
	b.Elements = kept
}

// Clone returns a deep copy so callers can hand boards across goroutines
// without sharing the element slice.
func (b *Board) Clone() *Board {
	clone := &Board{
		Elements:  make([]Element, len(b.Elements)),
		Scale:     b.Scale,
		PanOffset: b.PanOffset,
	}
	copy(clone.Elements, b.Elements)
	return clone
}
