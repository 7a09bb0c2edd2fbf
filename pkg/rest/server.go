package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/edgeflare/pgjsonapi/pkg/httputil"
	"github.com/edgeflare/pgjsonapi/pkg/resource"
)

// Resources is the set of resource operations served over HTTP.
type Resources interface {
	Registry() *resource.Registry
	GetAll(ctx context.Context, typ string, q *resource.Query) (*resource.Document, error)
	GetOne(ctx context.Context, typ, id string, q *resource.Query) (*resource.Document, error)
	PostOne(ctx context.Context, typ string, body *resource.PostData) (*resource.Document, error)
	PatchOne(ctx context.Context, typ, id string, body *resource.PatchData) (*resource.Document, error)
	DeleteOne(ctx context.Context, typ, id string) error
	GetRelationship(ctx context.Context, typ, id, rel string) (*resource.RelationshipDocument, error)
	PostRelationship(ctx context.Context, typ, id, rel string, data *resource.Linkage) (*resource.RelationshipDocument, error)
	PatchRelationship(ctx context.Context, typ, id, rel string, data *resource.Linkage) (*resource.RelationshipDocument, error)
	DeleteRelationship(ctx context.Context, typ, id, rel string, data *resource.Linkage) (*resource.RelationshipDocument, error)
}

// Config configures the HTTP adapter.
type Config struct {
	Pagination   Pagination `mapstructure:"pagination"`
	MaxBodyBytes int64      `mapstructure:"maxBodyBytes" validate:"gte=0"`
}

const defaultMaxBodyBytes = 1 << 20

// Server translates HTTP requests into resource operations.
type Server struct {
	svc    Resources
	cfg    Config
	logger *zap.Logger
}

// NewServer returns a Server over svc.
func NewServer(svc Resources, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Server{svc: svc, cfg: cfg, logger: logger}
}

// Register mounts the resource routes on r.
func (s *Server) Register(r *httputil.Router) {
	r.HandleFunc("GET /{type}", s.getAll)
	r.HandleFunc("POST /{type}", s.postOne)
	r.HandleFunc("GET /{type}/{id}", s.getOne)
	r.HandleFunc("PATCH /{type}/{id}", s.patchOne)
	r.HandleFunc("DELETE /{type}/{id}", s.deleteOne)
	r.HandleFunc("GET /{type}/{id}/relationships/{rel}", s.getRelationship)
	r.HandleFunc("POST /{type}/{id}/relationships/{rel}", s.relationshipWriter(s.svc.PostRelationship))
	r.HandleFunc("PATCH /{type}/{id}/relationships/{rel}", s.relationshipWriter(s.svc.PatchRelationship))
	r.HandleFunc("DELETE /{type}/{id}/relationships/{rel}", s.relationshipWriter(s.svc.DeleteRelationship))
}

// resolve looks up the entity addressed by the {type} path segment. It
// writes a 404 and returns false for unknown types.
func (s *Server) resolve(w http.ResponseWriter, r *http.Request) (*resource.Registry, *resource.Entity, bool) {
	typ := r.PathValue("type")
	reg := s.svc.Registry()
	if reg == nil {
		writeProblem(w, http.StatusServiceUnavailable, resource.ErrorDetail{Code: "schema_unavailable", Message: "schema not loaded"})
		return nil, nil, false
	}
	e, ok := reg.ByType(typ)
	if !ok {
		notFound(w, "unknown_type", fmt.Sprintf("unknown resource type %q", typ), "type")
		return nil, nil, false
	}
	return reg, e, true
}

// resolveRelation additionally checks the {rel} path segment.
func (s *Server) resolveRelation(w http.ResponseWriter, r *http.Request) (*resource.Entity, bool) {
	_, e, ok := s.resolve(w, r)
	if !ok {
		return nil, false
	}
	name := r.PathValue("rel")
	if _, ok := e.Relation(name); !ok {
		notFound(w, "unknown_relation", fmt.Sprintf("%s has no relationship %q", e.Type(), name), "relationships", name)
		return nil, false
	}
	return e, true
}

func (s *Server) getAll(w http.ResponseWriter, r *http.Request) {
	reg, e, ok := s.resolve(w, r)
	if !ok {
		return
	}
	q, err := ParseQuery(r.URL.Query(), reg, e, s.cfg.Pagination)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	doc, err := s.svc.GetAll(r.Context(), e.Type(), q)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	httputil.JSONWithContentType(w, http.StatusOK, MediaType, doc)
}

func (s *Server) getOne(w http.ResponseWriter, r *http.Request) {
	reg, e, ok := s.resolve(w, r)
	if !ok {
		return
	}
	q, err := ParseQuery(r.URL.Query(), reg, e, Pagination{})
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	doc, err := s.svc.GetOne(r.Context(), e.Type(), r.PathValue("id"), q)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	httputil.JSONWithContentType(w, http.StatusOK, MediaType, doc)
}

func (s *Server) postOne(w http.ResponseWriter, r *http.Request) {
	_, e, ok := s.resolve(w, r)
	if !ok {
		return
	}
	var body resource.PostData
	if !s.decodeData(w, r, &body) {
		return
	}
	if err := e.CheckNames(body.Attributes, body.Relationships); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	doc, err := s.svc.PostOne(r.Context(), e.Type(), &body)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if obj := doc.One(); obj != nil {
		w.Header().Set("Location", obj.Links.Self)
	}
	s.respond(w, r, http.StatusCreated, doc)
}

func (s *Server) patchOne(w http.ResponseWriter, r *http.Request) {
	_, e, ok := s.resolve(w, r)
	if !ok {
		return
	}
	var body resource.PatchData
	if !s.decodeData(w, r, &body) {
		return
	}
	if err := e.CheckNames(body.Attributes, body.Relationships); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	doc, err := s.svc.PatchOne(r.Context(), e.Type(), r.PathValue("id"), &body)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	s.respond(w, r, http.StatusOK, doc)
}

func (s *Server) deleteOne(w http.ResponseWriter, r *http.Request) {
	_, e, ok := s.resolve(w, r)
	if !ok {
		return
	}
	if err := s.svc.DeleteOne(r.Context(), e.Type(), r.PathValue("id")); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getRelationship(w http.ResponseWriter, r *http.Request) {
	e, ok := s.resolveRelation(w, r)
	if !ok {
		return
	}
	doc, err := s.svc.GetRelationship(r.Context(), e.Type(), r.PathValue("id"), r.PathValue("rel"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	httputil.JSONWithContentType(w, http.StatusOK, MediaType, doc)
}

type relationshipWrite func(ctx context.Context, typ, id, rel string, data *resource.Linkage) (*resource.RelationshipDocument, error)

func (s *Server) relationshipWriter(op relationshipWrite) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := s.resolveRelation(w, r)
		if !ok {
			return
		}
		raw, ok := s.readData(w, r)
		if !ok {
			return
		}
		var data *resource.Linkage
		if !bytes.Equal(raw, []byte("null")) {
			data = &resource.Linkage{}
			if err := json.Unmarshal(raw, data); err != nil {
				writeProblem(w, http.StatusBadRequest, resource.ErrorDetail{Code: "invalid_body", Message: err.Error(), Path: []string{"data"}})
				return
			}
		}
		doc, err := op(r.Context(), e.Type(), r.PathValue("id"), r.PathValue("rel"), data)
		if err != nil {
			writeError(w, r, s.logger, err)
			return
		}
		s.respond(w, r, http.StatusOK, doc)
	}
}

// respond writes doc, or only the status line when the client prefers a
// minimal response.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, doc any) {
	if parsePrefer(r).WantsMinimal() {
		w.Header().Set("Preference-Applied", "return=minimal")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httputil.JSONWithContentType(w, status, MediaType, doc)
}

// readData reads the request document and returns its raw data member.
func (s *Server) readData(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	if !checkContentType(r) {
		writeProblem(w, http.StatusUnsupportedMediaType, resource.ErrorDetail{
			Code:    "unsupported_media_type",
			Message: fmt.Sprintf("expected Content-Type %s", MediaType),
		})
		return nil, false
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		writeProblem(w, http.StatusRequestEntityTooLarge, resource.ErrorDetail{Code: "body_too_large", Message: err.Error()})
		return nil, false
	}
	var doc struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		writeProblem(w, http.StatusBadRequest, resource.ErrorDetail{Code: "invalid_body", Message: err.Error()})
		return nil, false
	}
	if len(doc.Data) == 0 {
		writeProblem(w, http.StatusBadRequest, resource.ErrorDetail{Code: "missing_data", Message: "document has no data member", Path: []string{"data"}})
		return nil, false
	}
	return doc.Data, true
}

// decodeData decodes the data member of a write request into v.
func (s *Server) decodeData(w http.ResponseWriter, r *http.Request, v any) bool {
	raw, ok := s.readData(w, r)
	if !ok {
		return false
	}
	if bytes.Equal(raw, []byte("null")) {
		writeProblem(w, http.StatusBadRequest, resource.ErrorDetail{Code: "missing_data", Message: "data must be a resource object", Path: []string{"data"}})
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		writeProblem(w, http.StatusBadRequest, resource.ErrorDetail{Code: "invalid_body", Message: err.Error(), Path: []string{"data"}})
		return false
	}
	return true
}
