package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/travel-insurance/pkg/kafka"
)

// =============================================================================
// Моки для тестов Worker
// =============================================================================

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) GetUnprocessed(ctx context.Context, limit int) ([]*Record, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Record), args.Error(1)
}

func (m *mockRepository) MarkProcessed(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockRepository) MarkFailed(ctx context.Context, id string, err error) error {
	return m.Called(ctx, id, err).Error(0)
}

func (m *mockRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) SendMessage(ctx context.Context, msg *kafka.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *mockPublisher) SendToDLQ(ctx context.Context, msg *kafka.Message, reason string) error {
	return m.Called(ctx, msg, reason).Error(0)
}

func testConfig() WorkerConfig {
	cfg := DefaultWorkerConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.BatchSize = 10
	cfg.MaxRetries = 3
	return cfg
}

// =============================================================================
// Тесты Worker
// =============================================================================

func TestWorker_ProcessBatch_Success(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepository)
	pub := new(mockPublisher)
	w := NewWorker(repo, pub, testConfig(), AggregatePayment)

	records := []*Record{
		{ID: "ob-1", Topic: kafka.TopicPaymentEvents, MessageKey: "pay-1", Payload: []byte(`{}`)},
		{ID: "ob-2", Topic: kafka.TopicPaymentEvents, MessageKey: "pay-2", Payload: []byte(`{}`)},
	}

	repo.On("GetUnprocessed", ctx, 10).Return(records, nil)
	pub.On("SendMessage", ctx, mock.MatchedBy(func(m *kafka.Message) bool {
		return m.Topic == kafka.TopicPaymentEvents
	})).Return(nil).Times(2)
	repo.On("MarkProcessed", ctx, "ob-1").Return(nil)
	repo.On("MarkProcessed", ctx, "ob-2").Return(nil)

	assert.Equal(t, 2, w.ProcessBatch(ctx))

	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestWorker_ProcessBatch_SendError(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepository)
	pub := new(mockPublisher)
	w := NewWorker(repo, pub, testConfig(), AggregatePolicy)

	record := &Record{ID: "ob-1", Topic: kafka.TopicPolicyEvents, MessageKey: "pol-1", Payload: []byte(`{}`)}
	sendErr := errors.New("kafka unavailable")

	repo.On("GetUnprocessed", ctx, 10).Return([]*Record{record}, nil)
	pub.On("SendMessage", ctx, mock.Anything).Return(sendErr)
	repo.On("MarkFailed", ctx, "ob-1", sendErr).Return(nil)

	assert.Zero(t, w.ProcessBatch(ctx))

	repo.AssertExpectations(t)
	// Неотправленная запись остаётся в очереди
	repo.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything)
}

func TestWorker_ProcessBatch_DeadLetter(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepository)
	pub := new(mockPublisher)
	w := NewWorker(repo, pub, testConfig(), AggregatePayment)

	lastErr := "broker timeout"
	dead := &Record{
		ID:          "ob-dead",
		Topic:       kafka.TopicPaymentEvents,
		MessageKey:  "pay-9",
		EventType:   kafka.EventPaymentFailed,
		AggregateID: "pay-9",
		Payload:     []byte(`{}`),
		RetryCount:  5,
		LastError:   &lastErr,
	}

	repo.On("GetUnprocessed", ctx, 10).Return([]*Record{dead}, nil)
	pub.On("SendToDLQ", ctx, mock.Anything, lastErr).Return(nil)
	repo.On("MarkProcessed", ctx, "ob-dead").Return(nil)

	w.ProcessBatch(ctx)

	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
	pub.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestWorker_ProcessBatch_DeadLetterQueueUnavailable(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepository)
	pub := new(mockPublisher)
	w := NewWorker(repo, pub, testConfig(), AggregatePayment)

	dead := &Record{ID: "ob-dead", Topic: kafka.TopicPaymentEvents, RetryCount: 3}

	repo.On("GetUnprocessed", ctx, 10).Return([]*Record{dead}, nil)
	pub.On("SendToDLQ", ctx, mock.Anything, mock.Anything).Return(errors.New("dlq down"))

	w.ProcessBatch(ctx)

	repo.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything)
}

func TestWorker_ProcessBatch_RepositoryError(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepository)
	pub := new(mockPublisher)
	w := NewWorker(repo, pub, testConfig(), AggregatePayment)

	repo.On("GetUnprocessed", ctx, 10).Return(nil, errors.New("db down"))

	assert.Zero(t, w.ProcessBatch(ctx))
	pub.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestWorker_Run_ContextCancel(t *testing.T) {
	repo := new(mockRepository)
	pub := new(mockPublisher)
	w := NewWorker(repo, pub, testConfig(), AggregatePayment)

	repo.On("GetUnprocessed", mock.Anything, 10).Return([]*Record{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Worker не остановился после отмены context")
	}
}

func TestNewRecord(t *testing.T) {
	ctx := context.Background()

	rec, err := NewRecord(ctx, AggregatePolicy, "pol-1", kafka.EventPolicyIssued, kafka.TopicPolicyEvents,
		map[string]string{"id": "pol-1"})
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "pol-1", rec.MessageKey)
	assert.Equal(t, kafka.EventPolicyIssued, rec.Headers[kafka.HeaderEventType])
	assert.JSONEq(t, `{"id":"pol-1"}`, string(rec.Payload))

	msg := rec.Message()
	assert.Equal(t, kafka.TopicPolicyEvents, msg.Topic)
	assert.Equal(t, []byte("pol-1"), msg.Key)
}
