package core

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"vetcore/internal/blob"
	"vetcore/pkg/domain"
)

// Attachments manages document content for record items: the bytes live in
// a blob store, the document record carries the content key and links into
// the history graph.
type Attachments struct {
	blobs blob.Store
	nowFn func() time.Time
}

// NewAttachments constructs an attachment service over the given blob
// store.
func NewAttachments(blobs blob.Store) *Attachments {
	return &Attachments{blobs: blobs, nowFn: time.Now}
}

// Attach stores the content and creates a document record linked to the
// item, registering both with the change tracker. The caller flushes via
// changes.Save.
func (a *Attachments) Attach(ctx context.Context, changes *HistoryChanges, item *RecordItem, fileName string, content io.Reader) (*RecordItem, error) {
	doc := &RecordItem{
		Base:       Base{ID: newID()},
		Kind:       KindDocument,
		Patient:    item.Patient,
		Clinician:  item.Clinician,
		StartTime:  a.nowFn(),
		FileName:   fileName,
		ContentKey: path.Join("documents", newID(), fileName),
	}
	if _, err := a.blobs.Put(ctx, doc.ContentKey, content, blob.PutOptions{}); err != nil {
		return nil, fmt.Errorf("store document content %s: %w", fileName, err)
	}
	changes.AddItemDocument(item, doc)
	return doc, nil
}

// Replace swaps an item's document for new content: the old document is
// detached and queued for removal, and a fresh one attached. The old
// document's content is not deleted here; call DeleteContent after the
// batch has flushed.
func (a *Attachments) Replace(ctx context.Context, changes *HistoryChanges, item, old *RecordItem, fileName string, content io.Reader) (*RecordItem, error) {
	if old.Kind != KindDocument {
		return nil, &domain.InvalidKindError{Arg: "old", Kind: old.Kind}
	}
	if err := changes.RemoveItemDocument(ctx, item, old); err != nil {
		return nil, err
	}
	return a.Attach(ctx, changes, item, fileName, content)
}

// Open returns the stored content of a document record.
func (a *Attachments) Open(ctx context.Context, doc *RecordItem) (io.ReadCloser, error) {
	if doc.Kind != KindDocument {
		return nil, &domain.InvalidKindError{Arg: "doc", Kind: doc.Kind}
	}
	_, rc, err := a.blobs.Get(ctx, doc.ContentKey)
	if err != nil {
		return nil, fmt.Errorf("open document content %s: %w", doc.ContentKey, err)
	}
	return rc, nil
}

// DeleteContent removes a document's stored bytes. Missing content is not
// an error; removal is idempotent.
func (a *Attachments) DeleteContent(ctx context.Context, doc *RecordItem) error {
	if doc.ContentKey == "" {
		return nil
	}
	if _, err := a.blobs.Delete(ctx, doc.ContentKey); err != nil {
		return fmt.Errorf("delete document content %s: %w", doc.ContentKey, err)
	}
	return nil
}
