package collection

import (
	"context"
	"fmt"

	"gamevault/internal/catalog"
	"gamevault/internal/features/importsession"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CollectionService interface {
	// CommitRow turns one confirmed import row into a permanent entry,
	// both in the catalog service and locally. Atomic per row: the
	// local record is only written after the catalog accepted it.
	CommitRow(ctx context.Context, userID primitive.ObjectID, row *importsession.ImportMatch) (*Entry, error)
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]Entry, error)
}

type CollectionServiceImpl struct {
	Repo    EntryRepository
	Catalog catalog.Client
}

func NewCollectionService(repo EntryRepository, client catalog.Client) CollectionService {
	return &CollectionServiceImpl{
		Repo:    repo,
		Catalog: client,
	}
}

func (s *CollectionServiceImpl) CommitRow(ctx context.Context, userID primitive.ObjectID, row *importsession.ImportMatch) (*Entry, error) {
	if row.Status != importsession.MatchConfirmed || row.ConfirmedGameID == nil {
		return nil, fmt.Errorf("row %d is not confirmed", row.LineNumber)
	}

	req := catalog.CollectionEntryRequest{
		UserID:     userID.Hex(),
		GameID:     *row.ConfirmedGameID,
		ConsoleIDs: row.ConfirmedConsoleIDs,
		Attributes: row.UserData,
	}
	if row.ConfirmedPlatformID != nil {
		req.PlatformID = *row.ConfirmedPlatformID
	}

	created, err := s.Catalog.CreateCollectionEntry(ctx, req)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		UserID:         userID,
		SessionID:      row.SessionID,
		GameID:         *row.ConfirmedGameID,
		PlatformID:     row.ConfirmedPlatformID,
		ConsoleIDs:     row.ConfirmedConsoleIDs,
		CatalogEntryID: created.ID,
		UserData:       row.UserData,
	}
	if err := s.Repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *CollectionServiceImpl) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]Entry, error) {
	return s.Repo.ListByUser(ctx, userID, 500)
}
