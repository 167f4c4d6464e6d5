package ticketsync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/ticketinbox/internal/enum"
)

func TestMessageIngestor_NewTicketThenDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newMemTicketStore()
	ingestor := NewMessageIngestor(store)
	msg := newMessage("m1@example.com", at(1))

	first, err := ingestor.Ingest(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, enum.IngestOutcomeTicketCreated, first.Outcome)
	assert.NotEmpty(t, first.TicketID)

	second, err := ingestor.Ingest(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, enum.IngestOutcomeDuplicate, second.Outcome)
	assert.Equal(t, []string{"m1@example.com"}, store.writtenIDs())
}

func TestMessageIngestor_ReplyByTicketRef(t *testing.T) {
	ctx := context.Background()
	store := newMemTicketStore()
	ingestor := NewMessageIngestor(store)

	created, err := ingestor.Ingest(ctx, newMessage("m1@example.com", at(1)))
	require.NoError(t, err)

	reply := newMessage("m2@example.com", at(2))
	ref := "T-00000001"
	reply.InReplyToTicketRef = &ref

	result, err := ingestor.Ingest(ctx, reply)
	require.NoError(t, err)
	assert.Equal(t, enum.IngestOutcomeReplyAppended, result.Outcome)
	assert.Equal(t, created.TicketID, result.TicketID)

	// the same reply delivered again is not appended twice
	again, err := ingestor.Ingest(ctx, reply)
	require.NoError(t, err)
	assert.Equal(t, enum.IngestOutcomeDuplicate, again.Outcome)
	assert.Equal(t, []string{"m2@example.com"}, store.replies[created.TicketID])
}

func TestMessageIngestor_ReplyByReferences(t *testing.T) {
	ctx := context.Background()
	store := newMemTicketStore()
	ingestor := NewMessageIngestor(store)

	created, err := ingestor.Ingest(ctx, newMessage("m1@example.com", at(1)))
	require.NoError(t, err)

	reply := newMessage("m2@example.com", at(2))
	reply.References = []string{"unknown@example.com", "m1@example.com"}

	result, err := ingestor.Ingest(ctx, reply)
	require.NoError(t, err)
	assert.Equal(t, enum.IngestOutcomeReplyAppended, result.Outcome)
	assert.Equal(t, created.TicketID, result.TicketID)
}

func TestMessageIngestor_UnknownRefOpensTicket(t *testing.T) {
	ctx := context.Background()
	ingestor := NewMessageIngestor(newMemTicketStore())

	msg := newMessage("m1@example.com", at(1))
	ref := "T-NOTFOUND"
	msg.InReplyToTicketRef = &ref

	result, err := ingestor.Ingest(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, enum.IngestOutcomeTicketCreated, result.Outcome)
}

func TestMessageIngestor_VanishedTicketOpensNewOne(t *testing.T) {
	ctx := context.Background()
	store := newMemTicketStore()
	ingestor := NewMessageIngestor(store)

	created, err := ingestor.Ingest(ctx, newMessage("m1@example.com", at(1)))
	require.NoError(t, err)
	store.deleteTicket(created.TicketID)

	reply := newMessage("m2@example.com", at(2))
	ref := "T-00000001"
	reply.InReplyToTicketRef = &ref

	result, err := ingestor.Ingest(ctx, reply)
	require.NoError(t, err)
	assert.Equal(t, enum.IngestOutcomeTicketCreated, result.Outcome)
	assert.NotEqual(t, created.TicketID, result.TicketID)
}

func TestMessageIngestor_RejectsMessageWithoutExternalID(t *testing.T) {
	ingestor := NewMessageIngestor(newMemTicketStore())

	_, err := ingestor.Ingest(context.Background(), newMessage(" ", at(1)))

	assert.Error(t, err)
}
