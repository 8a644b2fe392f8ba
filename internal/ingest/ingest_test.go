package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"knowledgetree/internal/domainmodel"
	"knowledgetree/internal/embedder"
)

type fakeStore struct {
	docs   map[int64]*domainmodel.Document
	nextID int64
	chunks map[int64][]domainmodel.Chunk
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[int64]*domainmodel.Document{}, chunks: map[int64][]domainmodel.Chunk{}}
}

func (s *fakeStore) CreateDocument(ctx context.Context, doc *domainmodel.Document) (int64, error) {
	s.nextID++
	cp := *doc
	cp.ID = s.nextID
	s.docs[s.nextID] = &cp
	return s.nextID, nil
}

func (s *fakeStore) UpdateDocumentState(ctx context.Context, docID int64, state domainmodel.ProcessingState, errMsg string) error {
	if d, ok := s.docs[docID]; ok {
		d.State = state
		d.ErrorMessage = errMsg
	}
	return nil
}

func (s *fakeStore) InsertChunks(ctx context.Context, projectID, documentID int64, chunks []domainmodel.Chunk) error {
	s.chunks[documentID] = chunks
	return nil
}

func TestRunWeb_FailsWithoutSelectorOrEngines(t *testing.T) {
	store := newFakeStore()
	c := New(Dependencies{
		Store:    store,
		Embedder: embedder.NewDeterministic(16, true, 1),
		Selector: nil,
	})

	// No selector/engines configured: expect a clear error, not a panic.
	_, err := c.Run(context.Background(), Job{ProjectID: 1, Source: domainmodel.SourceWeb, Locator: "https://example.com"}, nil)
	require.Error(t, err)
}

func TestChunkAndEmbed_ProducesDomainChunksInOrder(t *testing.T) {
	store := newFakeStore()
	c := New(Dependencies{
		Store:    store,
		Embedder: embedder.NewDeterministic(8, true, 7),
	})

	var events []Progress
	err := c.chunkAndEmbed(context.Background(), 42, 1,
		"First sentence here. Second sentence follows. Third one too.", false,
		0, 10, 10, 90, 90, 100, func(p Progress) { events = append(events, p) })
	require.NoError(t, err)

	require.NotEmpty(t, store.chunks[42])
	for i, ck := range store.chunks[42] {
		require.Equal(t, i, ck.ChunkIndex)
		require.True(t, ck.HasEmbedding)
	}
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, StageStorage, last.Stage)
	require.Equal(t, 100, last.Percent)
}

func TestRun_UnsupportedSourceKindFails(t *testing.T) {
	store := newFakeStore()
	c := New(Dependencies{Store: store, Embedder: embedder.NewDeterministic(8, false, 0)})
	docID, err := c.Run(context.Background(), Job{ProjectID: 1, Source: domainmodel.SourceKind("carrier-pigeon")}, nil)
	require.Error(t, err)
	require.NotZero(t, docID)
	require.Equal(t, domainmodel.StateFailed, store.docs[docID].State)
}
