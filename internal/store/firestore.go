package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/earningscallsummarizer/internal/models"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore keeps run records in a Firestore collection.
type Firestore struct {
	client     *firestore.Client
	collection string
}

// OpenFirestore creates a Firestore client for the given project.
func OpenFirestore(ctx context.Context, projectID, collection string) (*Firestore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}
	if collection == "" {
		collection = "summaries"
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return &Firestore{client: client, collection: collection}, nil
}

func (s *Firestore) runs() *firestore.CollectionRef {
	return s.client.Collection(s.collection)
}

func (s *Firestore) Create(ctx context.Context, run *models.Run) (string, error) {
	now := time.Now()
	run.CreatedAt, run.UpdatedAt = now, now
	docRef, _, err := s.runs().Add(ctx, run)
	if err != nil {
		return "", fmt.Errorf("failed to create run document: %w", err)
	}
	run.ID = docRef.ID
	return docRef.ID, nil
}

func (s *Firestore) Get(ctx context.Context, id string) (*models.Run, error) {
	snap, err := s.runs().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return decodeRun(snap)
}

func (s *Firestore) FindByHash(ctx context.Context, fileHash, preset string) (*models.Run, error) {
	docs, err := s.runs().
		Where("fileHash", "==", fileHash).
		Where("preset", "==", preset).
		OrderBy("createdAt", firestore.Desc).
		Limit(1).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return decodeRun(docs[0])
}

// FindCompleted needs a composite index on fileHash, preset, status and createdAt.
func (s *Firestore) FindCompleted(ctx context.Context, fileHash, preset string) (*models.Run, error) {
	docs, err := s.runs().
		Where("fileHash", "==", fileHash).
		Where("preset", "==", preset).
		Where("status", "==", models.StatusCompleted).
		OrderBy("createdAt", firestore.Desc).
		Limit(1).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query for completed runs: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return decodeRun(docs[0])
}

func (s *Firestore) MarkStatus(ctx context.Context, id, status string) error {
	return s.update(ctx, id, firestore.Update{Path: "status", Value: status})
}

func (s *Firestore) MarkFailed(ctx context.Context, id, details string) error {
	return s.update(ctx, id,
		firestore.Update{Path: "status", Value: models.StatusFailed},
		firestore.Update{Path: "errorDetails", Value: details},
	)
}

func (s *Firestore) SetPageCount(ctx context.Context, id string, pageCount int) error {
	return s.update(ctx, id, firestore.Update{Path: "pageCount", Value: pageCount})
}

func (s *Firestore) Complete(ctx context.Context, id string, report models.Report) error {
	return s.update(ctx, id,
		firestore.Update{Path: "status", Value: models.StatusCompleted},
		firestore.Update{Path: "report", Value: report.Text},
		firestore.Update{Path: "reportFormat", Value: report.Format},
		firestore.Update{Path: "reportGcsUri", Value: report.GCSUri},
	)
}

func (s *Firestore) Recent(ctx context.Context, limit int) ([]models.Run, error) {
	it := s.runs().OrderBy("createdAt", firestore.Desc).Limit(limit).Documents(ctx)
	defer it.Stop()

	var runs []models.Run
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}
		run, err := decodeRun(snap)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

func (s *Firestore) Close() error {
	return s.client.Close()
}

func (s *Firestore) update(ctx context.Context, id string, updates ...firestore.Update) error {
	updates = append(updates, firestore.Update{Path: "updatedAt", Value: time.Now()})
	if _, err := s.runs().Doc(id).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update run %s: %w", id, err)
	}
	return nil
}

func decodeRun(snap *firestore.DocumentSnapshot) (*models.Run, error) {
	var run models.Run
	if err := snap.DataTo(&run); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", snap.Ref.ID, err)
	}
	run.ID = snap.Ref.ID
	return &run, nil
}
