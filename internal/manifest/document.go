package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/golang/snappy"

	apperrors "github.com/arkilian/partprune/internal/errors"
	"github.com/arkilian/partprune/internal/storage"
	"github.com/arkilian/partprune/pkg/types"
)

// DocumentVersion is the catalog document format written by Export.
const DocumentVersion = 1

// CompressedSuffix marks document keys that are stored snappy-compressed.
const CompressedSuffix = ".sz"

// Document is the portable form of a set of partition schemes. Bounds are
// stored as text so integer and timestamp keys survive JSON exactly.
type Document struct {
	Version   int           `json:"version"`
	Relations []DocRelation `json:"relations"`
}

// DocRelation is one partitioned relation in a Document.
type DocRelation struct {
	ID         types.RelationID `json:"id"`
	Name       string           `json:"name"`
	KeyColumn  string           `json:"key_column"`
	KeyType    types.KeyType    `json:"key_type"`
	Strategy   types.Strategy   `json:"strategy"`
	Partitions []DocPartition   `json:"partitions"`
}

// DocPartition is one child of a DocRelation.
type DocPartition struct {
	ID   types.RelationID `json:"id"`
	Name string           `json:"name"`
	Min  string           `json:"min,omitempty"`
	Max  string           `json:"max,omitempty"`
}

// NewDocument converts schemes to their document form.
func NewDocument(schemes []*types.PartitionScheme) (*Document, error) {
	doc := &Document{Version: DocumentVersion, Relations: make([]DocRelation, 0, len(schemes))}
	for _, s := range schemes {
		rel := DocRelation{
			ID:        s.Relation,
			Name:      s.Name,
			KeyColumn: s.KeyColumn,
			KeyType:   s.KeyType,
			Strategy:  s.Strategy,
		}
		for i, c := range s.Children {
			p := DocPartition{ID: c.ID, Name: c.Name}
			if s.Strategy == types.StrategyRange && i < len(s.Bounds) {
				var err error
				if p.Min, err = types.EncodeDatum(s.KeyType, s.Bounds[i].Min); err != nil {
					return nil, fmt.Errorf("manifest: %s bound %d: %w", s.Name, i, err)
				}
				if p.Max, err = types.EncodeDatum(s.KeyType, s.Bounds[i].Max); err != nil {
					return nil, fmt.Errorf("manifest: %s bound %d: %w", s.Name, i, err)
				}
			}
			rel.Partitions = append(rel.Partitions, p)
		}
		doc.Relations = append(doc.Relations, rel)
	}
	sort.Slice(doc.Relations, func(i, j int) bool {
		return doc.Relations[i].ID < doc.Relations[j].ID
	})
	return doc, nil
}

// Schemes decodes and validates every relation of the document.
func (d *Document) Schemes() ([]*types.PartitionScheme, error) {
	if d.Version != DocumentVersion {
		return nil, apperrors.NewValidationError(apperrors.CodeInvalidDocument,
			fmt.Sprintf("unsupported catalog document version %d", d.Version))
	}
	out := make([]*types.PartitionScheme, 0, len(d.Relations))
	for _, rel := range d.Relations {
		s := &types.PartitionScheme{
			Relation:  rel.ID,
			Name:      rel.Name,
			KeyColumn: rel.KeyColumn,
			KeyType:   rel.KeyType,
			Strategy:  rel.Strategy,
		}
		for i, p := range rel.Partitions {
			s.Children = append(s.Children, types.ChildRelation{ID: p.ID, Name: p.Name})
			if rel.Strategy != types.StrategyRange {
				continue
			}
			lo, err := types.DecodeDatum(rel.KeyType, p.Min)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.ErrCategoryValidation, apperrors.CodeInvalidDocument,
					fmt.Sprintf("%s partition %d: bad min", rel.Name, i), err)
			}
			hi, err := types.DecodeDatum(rel.KeyType, p.Max)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.ErrCategoryValidation, apperrors.CodeInvalidDocument,
					fmt.Sprintf("%s partition %d: bad max", rel.Name, i), err)
			}
			s.Bounds = append(s.Bounds, types.RangeBound{Min: lo, Max: hi, Index: i})
		}
		if err := s.Validate(); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCategoryValidation, apperrors.CodeInvalidDocument,
				"invalid relation "+rel.Name, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// EncodeDocument serializes a document, compressing it when key ends in
// CompressedSuffix.
func EncodeDocument(key string, doc *Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to encode document: %w", err)
	}
	if strings.HasSuffix(key, CompressedSuffix) {
		return snappy.Encode(nil, data), nil
	}
	return data, nil
}

// DecodeDocument parses data written by EncodeDocument under key.
func DecodeDocument(key string, data []byte) (*Document, error) {
	if strings.HasSuffix(key, CompressedSuffix) {
		raw, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCategoryValidation, apperrors.CodeInvalidDocument,
				"corrupt compressed document "+key, err)
		}
		data = raw
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCategoryValidation, apperrors.CodeInvalidDocument,
			"malformed document "+key, err)
	}
	return &doc, nil
}

// ExportOptions makes ExportDocument conditional on the object already
// stored under the key.
type ExportOptions struct {
	// IfMatch overwrites the object only while its ETag equals IfMatch.
	IfMatch string
	// CreateOnly fails if an object already exists under the key.
	CreateOnly bool
}

func (o ExportOptions) conditional() bool {
	return o.IfMatch != "" || o.CreateOnly
}

// ExportDocument writes every relation of the catalog to key and returns the ETag
// of the stored document. A failed precondition is reported with
// CodePreconditionFailed.
func ExportDocument(ctx context.Context, catalog Catalog, store storage.ObjectStorage, key string, opts ExportOptions) (string, error) {
	if opts.IfMatch != "" && opts.CreateOnly {
		return "", apperrors.NewValidationError(apperrors.CodeInvalidRequest, "if-match and create-only are mutually exclusive")
	}
	schemes, err := catalog.ListRelations(ctx)
	if err != nil {
		return "", err
	}
	doc, err := NewDocument(schemes)
	if err != nil {
		return "", err
	}
	data, err := EncodeDocument(key, doc)
	if err != nil {
		return "", err
	}

	var etag string
	if opts.conditional() {
		etag, err = store.ConditionalPut(ctx, key, data, opts.IfMatch)
	} else {
		etag, err = store.Put(ctx, key, data)
	}
	if errors.Is(err, storage.ErrPreconditionFailed) {
		return "", apperrors.NewStorageError(apperrors.CodePreconditionFailed, "object at "+key+" changed since it was read", err)
	}
	if err != nil {
		return "", apperrors.NewStorageError(apperrors.CodeUploadFailed, "failed to export catalog to "+key, err)
	}
	return etag, nil
}

// ListDocuments returns the document keys stored under prefix: plain
// ".json" objects and their snappy-compressed ".json.sz" form.
func ListDocuments(ctx context.Context, store storage.ObjectStorage, prefix string) ([]string, error) {
	objects, err := store.ListObjects(ctx, prefix)
	if err != nil {
		return nil, apperrors.NewStorageError(apperrors.CodeDownloadFailed, "failed to list documents under "+prefix, err)
	}
	keys := objects[:0]
	for _, key := range objects {
		if strings.HasSuffix(key, ".json") || strings.HasSuffix(key, ".json"+CompressedSuffix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// ImportResult reports what ImportDocument did.
type ImportResult struct {
	Created []string
	Skipped []string
}

// ImportDocument loads the documents stored under keys into the catalog. Relations
// whose id or name already exists are skipped unless replace is set, in
// which case they are dropped and recreated.
func ImportDocument(ctx context.Context, catalog Catalog, store storage.ObjectStorage, keys []string, concurrency int, replace bool) (*ImportResult, error) {
	fetched, err := storage.NewFetcher(store, concurrency).Fetch(ctx, keys)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for _, key := range keys {
		if err := fetched.Errors[key]; err != nil {
			code := apperrors.CodeDownloadFailed
			if errors.Is(err, storage.ErrObjectNotFound) {
				code = apperrors.CodeObjectNotFound
			}
			return result, apperrors.NewStorageError(code, "failed to read "+key, err)
		}
		doc, err := DecodeDocument(key, fetched.Objects[key])
		if err != nil {
			return result, err
		}
		schemes, err := doc.Schemes()
		if err != nil {
			return result, err
		}
		for _, s := range schemes {
			created, err := importScheme(ctx, catalog, s, replace)
			if err != nil {
				return result, err
			}
			if created {
				result.Created = append(result.Created, s.Name)
			} else {
				result.Skipped = append(result.Skipped, s.Name)
			}
		}
	}
	return result, nil
}

func importScheme(ctx context.Context, catalog Catalog, s *types.PartitionScheme, replace bool) (bool, error) {
	err := catalog.CreateRelation(ctx, s)
	if apperrors.GetCode(err) != apperrors.CodeRelationExists {
		return err == nil, err
	}
	if !replace {
		return false, nil
	}
	if err := catalog.DropRelation(ctx, s.Relation); err != nil && apperrors.GetCode(err) != apperrors.CodeRelationNotFound {
		return false, err
	}
	if id, ok, err := catalog.LookupRelation(ctx, s.Name); err != nil {
		return false, err
	} else if ok && id != s.Relation {
		if err := catalog.DropRelation(ctx, id); err != nil {
			return false, err
		}
	}
	if err := catalog.CreateRelation(ctx, s); err != nil {
		return false, err
	}
	return true, nil
}
