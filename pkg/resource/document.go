package resource

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ResourceIdentifier references a resource without its attributes.
type ResourceIdentifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Linkage is the data member of a relationship: a single identifier (or
// null) for to-one relations, an array of identifiers for to-many.
type Linkage struct {
	Many  bool
	One   *ResourceIdentifier
	Items []ResourceIdentifier
}

// ToOne returns to-one linkage; a nil id renders as null.
func ToOne(id *ResourceIdentifier) *Linkage {
	return &Linkage{One: id}
}

// ToMany returns to-many linkage; no ids renders as [].
func ToMany(ids []ResourceIdentifier) *Linkage {
	if ids == nil {
		ids = []ResourceIdentifier{}
	}
	return &Linkage{Many: true, Items: ids}
}

// Identifiers returns the referenced identifiers regardless of cardinality.
func (l *Linkage) Identifiers() []ResourceIdentifier {
	if l == nil {
		return nil
	}
	if l.Many {
		return l.Items
	}
	if l.One == nil {
		return nil
	}
	return []ResourceIdentifier{*l.One}
}

func (l Linkage) MarshalJSON() ([]byte, error) {
	if l.Many {
		if l.Items == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(l.Items)
	}
	return json.Marshal(l.One)
}

func (l *Linkage) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*l = Linkage{}
		return nil
	case len(data) > 0 && data[0] == '[':
		var items []ResourceIdentifier
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = *ToMany(items)
		return nil
	default:
		var id ResourceIdentifier
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*l = Linkage{One: &id}
		return nil
	}
}

// Links holds resource and relationship links.
type Links struct {
	Self string `json:"self"`
}

// Relationship is one member of a resource object's relationships. Data is
// nil when the relation was not loaded, which omits the member entirely.
type Relationship struct {
	Links Links    `json:"links"`
	Data  *Linkage `json:"data,omitempty"`
}

// ResourceObject is a resource as rendered on the wire.
type ResourceObject struct {
	Type          string                  `json:"type"`
	ID            string                  `json:"id"`
	Attributes    map[string]any          `json:"attributes"`
	Relationships map[string]Relationship `json:"relationships,omitempty"`
	Links         Links                   `json:"links"`
}

// Identifier returns the resource identifier of o.
func (o *ResourceObject) Identifier() ResourceIdentifier {
	return ResourceIdentifier{Type: o.Type, ID: o.ID}
}

// Meta carries pagination information of a collection document.
type Meta struct {
	PageNumber int `json:"pageNumber"`
	PageSize   int `json:"pageSize"`
	TotalItems int `json:"totalItems"`
}

// Document is a top-level JSON:API document. Data is a *ResourceObject for
// single-item documents and a []ResourceObject for collections.
type Document struct {
	Meta     *Meta            `json:"meta,omitempty"`
	Data     any              `json:"data"`
	Included []ResourceObject `json:"included,omitempty"`
}

// One returns the primary data of a single-item document.
func (d *Document) One() *ResourceObject {
	o, _ := d.Data.(*ResourceObject)
	return o
}

// Many returns the primary data of a collection document.
func (d *Document) Many() []ResourceObject {
	objs, _ := d.Data.([]ResourceObject)
	return objs
}

// RelationshipDocument is the body of relationship endpoints.
type RelationshipDocument struct {
	Data *Linkage `json:"data"`
}

// RelationshipData is a relationship member of a write body. Data == nil
// means an explicit null.
type RelationshipData struct {
	Data *Linkage `json:"data"`
}

// PostData is the primary data of a create request.
type PostData struct {
	Type          string                      `json:"type"`
	ID            string                      `json:"id,omitempty"`
	Attributes    map[string]any              `json:"attributes"`
	Relationships map[string]RelationshipData `json:"relationships,omitempty"`
}

// PatchData is the primary data of an update request.
type PatchData struct {
	Type          string                      `json:"type"`
	ID            string                      `json:"id"`
	Attributes    map[string]any              `json:"attributes,omitempty"`
	Relationships map[string]RelationshipData `json:"relationships,omitempty"`
}

// FormatID renders a primary key value as a resource id.
func FormatID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case [16]byte:
		return uuid.UUID(id).String()
	case uuid.UUID:
		return id.String()
	case int64:
		return strconv.FormatInt(id, 10)
	case int32:
		return strconv.FormatInt(int64(id), 10)
	case int:
		return strconv.Itoa(id)
	case time.Time:
		return id.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return id.String()
	default:
		return fmt.Sprint(id)
	}
}
