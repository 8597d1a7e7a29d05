package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"arena/internal/catalog"
	"arena/internal/codec"
	"arena/internal/core/apperror"
	"arena/internal/storage/postgres"
)

// EntityStore is the row-store surface the generic handlers drive.
// *postgres.Store implements it.
type EntityStore interface {
	catalog.Resolver
	List(ctx context.Context, desc *catalog.Descriptor, limit uint64) ([]*catalog.Instance, error)
	Insert(ctx context.Context, desc *catalog.Descriptor, cols map[string]any) (catalog.Key, error)
	Update(ctx context.Context, inst *catalog.Instance, cols map[string]any) error
	Delete(ctx context.Context, inst *catalog.Instance) error
	Sublist(ctx context.Context, inst *catalog.Instance, rel *catalog.Relationship) ([]*catalog.Instance, error)
	ApplyRelationships(ctx context.Context, inst *catalog.Instance, rels map[string]any) error
}

// TxRunner runs a function inside one database transaction.
// *postgres.TxManager implements it.
type TxRunner interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EntityHandler serves the generic CRUD surface. One handler covers every
// cataloged entity: each route closure binds a descriptor and the rest is
// driven by the catalog and the codec.
type EntityHandler struct {
	*BaseHandler
	store EntityStore
	txm   TxRunner
}

// NewEntityHandler creates the generic entity handler.
func NewEntityHandler(store EntityStore, txm TxRunner) *EntityHandler {
	return &EntityHandler{
		BaseHandler: NewBaseHandler(),
		store:       store,
		txm:         txm,
	}
}

// resolvePath resolves the ":ref" path parameter to a live instance. An
// unparsable or dangling reference in the path is a missing resource, not a
// malformed request.
func (h *EntityHandler) resolvePath(ctx context.Context, c *gin.Context, desc *catalog.Descriptor) (*catalog.Instance, error) {
	ref := c.Param("ref")
	inst, err := codec.ParseRef(ctx, desc, ref, h.store)
	if err != nil {
		if appErr, ok := apperror.AsAppError(err); ok && appErr.Code == apperror.CodeInvalidReference {
			return nil, apperror.NewNotFound(desc.Table, ref)
		}
		return nil, err
	}
	return inst, nil
}

// List returns every instance of the entity.
func (h *EntityHandler) List(desc *catalog.Descriptor) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := h.ParseIntQuery(c, "limit", 0)
		insts, err := h.store.List(c.Request.Context(), desc, uint64(limit))
		if err != nil {
			h.Error(c, err)
			return
		}
		out := make([]map[string]any, 0, len(insts))
		for _, inst := range insts {
			content, err := codec.Encode(inst)
			if err != nil {
				h.Error(c, err)
				return
			}
			out = append(out, content)
		}
		h.OK(c, out)
	}
}

// Create inserts a new instance from the request body.
func (h *EntityHandler) Create(desc *catalog.Descriptor) gin.HandlerFunc {
	return func(c *gin.Context) {
		content, ok := h.DecodeBody(c)
		if !ok {
			return
		}

		var ref string
		err := h.txm.RunInTransaction(c.Request.Context(), func(ctx context.Context) error {
			cols, rels, err := codec.Decode(ctx, desc, content, h.store)
			if err != nil {
				return err
			}
			fkCols, remaining := postgres.FoldOwning(desc, rels)
			for k, v := range fkCols {
				cols[k] = v
			}
			key, err := h.store.Insert(ctx, desc, cols)
			if err != nil {
				return err
			}
			if len(remaining) > 0 {
				inst, err := h.store.Resolve(ctx, desc, key)
				if err != nil {
					return err
				}
				if err := h.store.ApplyRelationships(ctx, inst, remaining); err != nil {
					return err
				}
			}
			ref = codec.FormatKey(key)
			return nil
		})
		if err != nil {
			h.Error(c, err)
			return
		}

		location := strings.TrimSuffix(c.Request.URL.Path, "/") + "/" + ref
		h.Created(c, location, ref)
	}
}

// Retrieve returns one instance.
func (h *EntityHandler) Retrieve(desc *catalog.Descriptor) gin.HandlerFunc {
	return func(c *gin.Context) {
		inst, err := h.resolvePath(c.Request.Context(), c, desc)
		if err != nil {
			h.Error(c, err)
			return
		}
		content, err := codec.Encode(inst)
		if err != nil {
			h.Error(c, err)
			return
		}
		h.OK(c, content)
	}
}

// Update merges the request body into an existing instance. Keys absent from
// the body keep their stored value; a "_ref" key, if present, must match the
// path.
func (h *EntityHandler) Update(desc *catalog.Descriptor) gin.HandlerFunc {
	return func(c *gin.Context) {
		content, ok := h.DecodeBody(c)
		if !ok {
			return
		}

		err := h.txm.RunInTransaction(c.Request.Context(), func(ctx context.Context) error {
			inst, err := h.resolvePath(ctx, c, desc)
			if err != nil {
				return err
			}
			if raw, present := content[codec.RefKey]; present {
				if raw != codec.FormatRef(inst) {
					return apperror.NewMalformedInput("body reference does not match the resource")
				}
				delete(content, codec.RefKey)
			}
			cols, rels, err := codec.Decode(ctx, desc, content, h.store)
			if err != nil {
				return err
			}
			fkCols, remaining := postgres.FoldOwning(desc, rels)
			for k, v := range fkCols {
				cols[k] = v
			}
			if err := h.store.Update(ctx, inst, cols); err != nil {
				return err
			}
			return h.store.ApplyRelationships(ctx, inst, remaining)
		})
		if err != nil {
			h.Error(c, err)
			return
		}
		h.NoContent(c)
	}
}

// Delete removes one instance, cascading per the catalog.
func (h *EntityHandler) Delete(desc *catalog.Descriptor) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.txm.RunInTransaction(c.Request.Context(), func(ctx context.Context) error {
			inst, err := h.resolvePath(ctx, c, desc)
			if err != nil {
				return err
			}
			return h.store.Delete(ctx, inst)
		})
		if err != nil {
			h.Error(c, err)
			return
		}
		h.NoContent(c)
	}
}

// Sublist returns the instances on the far side of one relationship, always
// as an array, even for to-one relationships.
func (h *EntityHandler) Sublist(desc *catalog.Descriptor) gin.HandlerFunc {
	return func(c *gin.Context) {
		relKey := c.Param("rel")
		rel, ok := desc.Relationship(relKey)
		if !ok {
			h.Error(c, apperror.NewNotFound("relationship", relKey))
			return
		}
		inst, err := h.resolvePath(c.Request.Context(), c, desc)
		if err != nil {
			h.Error(c, err)
			return
		}
		others, err := h.store.Sublist(c.Request.Context(), inst, &rel)
		if err != nil {
			h.Error(c, err)
			return
		}
		out := make([]map[string]any, 0, len(others))
		for _, other := range others {
			content, err := codec.Encode(other)
			if err != nil {
				h.Error(c, err)
				return
			}
			out = append(out, content)
		}
		h.OK(c, out)
	}
}
