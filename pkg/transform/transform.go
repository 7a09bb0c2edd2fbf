// Package transform renders hydrated records as JSON:API documents.
package transform

import (
	"net/url"
	"strings"

	"github.com/edgeflare/pgjsonapi/pkg/resource"
)

// Config locates resources for link generation.
type Config struct {
	BaseURL string `mapstructure:"baseURL"`
	Prefix  string `mapstructure:"prefix"`
	Version string `mapstructure:"version"`
}

// Transformer builds documents and links.
type Transformer struct {
	cfg Config
}

// New returns a Transformer generating links under cfg.
func New(cfg Config) *Transformer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "/"
	}
	return &Transformer{cfg: cfg}
}

// Link joins path segments under the base URL, prefix and version.
// Segments are escaped.
func (t *Transformer) Link(segments ...string) string {
	elems := make([]string, 0, len(segments)+2)
	for _, s := range []string{t.cfg.Prefix, t.cfg.Version} {
		if s != "" {
			elems = append(elems, s)
		}
	}
	for _, s := range segments {
		elems = append(elems, url.PathEscape(s))
	}
	link, err := url.JoinPath(t.cfg.BaseURL, elems...)
	if err != nil {
		return "/" + strings.Join(elems, "/")
	}
	return link
}

// SelfLink returns the link of one resource.
func (t *Transformer) SelfLink(typ, id string) string {
	return t.Link(typ, id)
}

// RelationshipLink returns the link of one relationship of a resource.
func (t *Transformer) RelationshipLink(typ, id, rel string) string {
	return t.Link(typ, id, "relationships", rel)
}

// Object renders one record. Every relation of the entity is listed with
// its links; data is present only for loaded relations.
func (t *Transformer) Object(rec *resource.Record) resource.ResourceObject {
	typ := rec.Entity.Type()
	id := resource.FormatID(rec.ID)
	obj := resource.ResourceObject{
		Type:       typ,
		ID:         id,
		Attributes: make(map[string]any, len(rec.Attributes)),
		Links:      resource.Links{Self: t.SelfLink(typ, id)},
	}
	for k, v := range rec.Attributes {
		obj.Attributes[k] = v
	}
	if len(rec.Entity.Relations) > 0 {
		obj.Relationships = make(map[string]resource.Relationship, len(rec.Entity.Relations))
	}
	for i := range rec.Entity.Relations {
		rel := &rec.Entity.Relations[i]
		r := resource.Relationship{Links: resource.Links{Self: t.RelationshipLink(typ, id, rel.Name)}}
		if loaded, ok := rec.Relations[rel.Name]; ok {
			r.Data = Linkage(rel, loaded)
		}
		obj.Relationships[rel.Name] = r
	}
	return obj
}

// Linkage returns the identifiers of a loaded relation, shaped by the
// relation's cardinality.
func Linkage(rel *resource.Relation, loaded *resource.Loaded) *resource.Linkage {
	if rel.Cardinality == resource.Many {
		ids := make([]resource.ResourceIdentifier, 0)
		if loaded != nil {
			for _, r := range loaded.Many {
				ids = append(ids, identifier(r))
			}
		}
		return resource.ToMany(ids)
	}
	if loaded == nil || loaded.One == nil {
		return resource.ToOne(nil)
	}
	id := identifier(loaded.One)
	return resource.ToOne(&id)
}

func identifier(r *resource.Record) resource.ResourceIdentifier {
	return resource.ResourceIdentifier{Type: r.Entity.Type(), ID: resource.FormatID(r.ID)}
}

// One renders a single-resource document.
func (t *Transformer) One(rec *resource.Record) *resource.Document {
	obj := t.Object(rec)
	return &resource.Document{
		Data:     &obj,
		Included: t.included([]*resource.Record{rec}),
	}
}

// Many renders a collection document. meta is omitted when nil.
func (t *Transformer) Many(recs []*resource.Record, meta *resource.Meta) *resource.Document {
	data := make([]resource.ResourceObject, 0, len(recs))
	for _, rec := range recs {
		data = append(data, t.Object(rec))
	}
	return &resource.Document{
		Meta:     meta,
		Data:     data,
		Included: t.included(recs),
	}
}

// Relationship renders the body of a relationship endpoint.
func (t *Transformer) Relationship(rel *resource.Relation, loaded *resource.Loaded) *resource.RelationshipDocument {
	return &resource.RelationshipDocument{Data: Linkage(rel, loaded)}
}

// included collects the related records of recs, once per (type, id) in the
// order first seen, leaving out resources that are primary data.
func (t *Transformer) included(recs []*resource.Record) []resource.ResourceObject {
	seen := make(map[resource.ResourceIdentifier]struct{})
	for _, r := range recs {
		seen[identifier(r)] = struct{}{}
	}
	var out []resource.ResourceObject
	for _, r := range recs {
		for i := range r.Entity.Relations {
			for _, related := range r.Relations[r.Entity.Relations[i].Name].Records() {
				id := identifier(related)
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				out = append(out, t.Object(related))
			}
		}
	}
	return out
}
