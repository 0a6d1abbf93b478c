package bus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thefalc/podcast-research-agent/pkg/db"
	"github.com/thefalc/podcast-research-agent/pkg/domain"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
	closed    bool
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) == 0 {
		f.cancel()
		return kafka.Message{}, ctx.Err()
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

type failingStore struct {
	db.ChunkStore
}

func (failingStore) SaveChunks(ctx context.Context, chunks []domain.TextChunk) error {
	return errors.New("mongo unavailable")
}

func records() []domain.TextChunk {
	return []domain.TextChunk{
		{BundleID: "b1", SourceURL: "https://a", Text: "one", Embedding: []float32{1, 0}},
		{BundleID: "b1", SourceURL: "https://a", Text: "two", Embedding: []float32{0, 1}},
	}
}

func TestStorePublisher(t *testing.T) {
	store := db.NewMemoryStore()
	require.NoError(t, NewStorePublisher(store).Publish(context.Background(), records()))
	assert.Len(t, store.Chunks("b1"), 2)
}

func TestKafkaPublisher_OneMessagePerRecord(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisherWithWriter(w, nil)

	require.NoError(t, p.Publish(context.Background(), records()))
	require.Len(t, w.msgs, 2)

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "b1", got["bundleId"])
	assert.Equal(t, "https://a", got["url"])
	assert.Equal(t, "one", got["text"])
	assert.Len(t, got["embedding"], 2)
	assert.Equal(t, []byte("b1"), w.msgs[0].Key)

	require.NoError(t, p.Publish(context.Background(), nil))
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	p := NewKafkaPublisherWithWriter(&fakeWriter{err: errors.New("broker down")}, nil)
	require.Error(t, p.Publish(context.Background(), records()))
}

func encode(t *testing.T, r domain.TextChunk, offset int64) kafka.Message {
	t.Helper()
	v, err := json.Marshal(r)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: v}
}

func TestSink_StoresAndCommits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recs := records()
	r := &fakeReader{
		msgs: []kafka.Message{
			encode(t, recs[0], 10),
			{Offset: 11, Value: []byte("not json")},
			encode(t, recs[1], 12),
		},
		cancel: cancel,
	}
	store := db.NewMemoryStore()

	require.NoError(t, NewSink(r, store, nil).Run(ctx))

	chunks := store.Chunks("b1")
	require.Len(t, chunks, 2)
	assert.Equal(t, "one", chunks[0].Text)
	assert.Equal(t, "two", chunks[1].Text)
	assert.Equal(t, []int64{10, 11, 12}, r.committed)
	assert.True(t, r.closed)
}

func TestSink_StoreFailureDoesNotCommit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeReader{msgs: []kafka.Message{encode(t, records()[0], 5)}, cancel: cancel}

	err := NewSink(r, failingStore{}, nil).Run(ctx)
	require.Error(t, err)
	assert.Empty(t, r.committed)
}

func TestNewKafkaPublisher_RequiresBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{}, nil)
	require.Error(t, err)

	p, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Username: "u", Password: "p", TLS: true}, nil)
	require.NoError(t, err)
	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, DefaultTopic, w.Topic)
}
