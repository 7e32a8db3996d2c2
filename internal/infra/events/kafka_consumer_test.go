package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	auctionApp "github.com/davicafu/auctionsearch/internal/auction/application"
	auctionDomain "github.com/davicafu/auctionsearch/internal/auction/domain"
	"github.com/davicafu/auctionsearch/internal/mocks"
	sharedEvents "github.com/davicafu/auctionsearch/internal/shared/events"
	"github.com/davicafu/auctionsearch/internal/shared/infra/retry"
)

// handlerFunc adapta una función a MessageHandler y registra las llamadas.
type handlerFunc struct {
	mu    sync.Mutex
	calls []string
	fn    func(key string, payload []byte) error
}

func (h *handlerFunc) HandleMessage(ctx context.Context, key string, payload []byte) error {
	h.mu.Lock()
	h.calls = append(h.calls, key)
	h.mu.Unlock()
	return h.fn(key, payload)
}

func (h *handlerFunc) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

type mockDeadLetters struct {
	mock.Mock
}

func (m *mockDeadLetters) Forward(ctx context.Context, msg kafka.Message, reason error) error {
	args := m.Called(ctx, msg, reason)
	return args.Error(0)
}

func startConsumer(t *testing.T, reader MessageReader, h MessageHandler, opts ...ConsumerOption) (*Consumer, *Task) {
	t.Helper()
	opts = append([]ConsumerOption{WithRedeliveryDelay(time.Millisecond)}, opts...)
	c := NewConsumer(reader, h, auctionDomain.AuctionTopic, zap.NewNop(), opts...)
	task := c.Start(context.Background())
	t.Cleanup(func() { _ = task.Stop() })
	return c, task
}

func publishRaw(t *testing.T, bus *InMemoryEventBus, key, value string) {
	t.Helper()
	require.NoError(t, bus.PublishRaw(context.Background(), []byte(key), []byte(value)))
}

func TestConsumer_CommitsAfterSuccessfulHandling(t *testing.T) {
	// Arrange
	bus := NewInMemoryEventBus(auctionDomain.AuctionTopic, 10)
	h := &handlerFunc{fn: func(string, []byte) error { return nil }}
	_, task := startConsumer(t, bus, h)

	// Act
	publishRaw(t, bus, "A1", "{}")
	publishRaw(t, bus, "A2", "{}")

	// Assert
	assert.Eventually(t, func() bool { return len(bus.Committed()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []int64{0, 1}, bus.Committed())
	require.NoError(t, task.Stop())
}

// Si el upsert falla por una causa pasajera el mensaje no se confirma nunca.
func TestConsumer_NoAckBeforeCommit(t *testing.T) {
	bus := NewInMemoryEventBus(auctionDomain.AuctionTopic, 10)
	h := &handlerFunc{fn: func(string, []byte) error {
		return auctionDomain.StoreUnavailable(errors.New("connection refused"))
	}}
	c, task := startConsumer(t, bus, h)

	publishRaw(t, bus, "A1", "{}")
	publishRaw(t, bus, "A2", "{}")

	// El mismo mensaje se reprocesa; el siguiente no se lee mientras tanto.
	assert.Eventually(t, func() bool { return len(h.Calls()) >= 5 }, time.Second, time.Millisecond)
	for _, key := range h.Calls() {
		assert.Equal(t, "A1", key)
	}
	assert.Empty(t, bus.Committed())

	require.NoError(t, task.Stop())
	assert.Empty(t, bus.Committed(), "cancelar no debe confirmar el mensaje pendiente")
	assert.Equal(t, StateStopped, c.State())
}

func TestConsumer_TransientFailureThenRecovery(t *testing.T) {
	bus := NewInMemoryEventBus(auctionDomain.AuctionTopic, 10)
	failures := 2
	h := &handlerFunc{fn: func(key string, _ []byte) error {
		if key == "A1" && failures > 0 {
			failures--
			return auctionDomain.StoreUnavailable(errors.New("timeout"))
		}
		return nil
	}}
	_, _ = startConsumer(t, bus, h)

	publishRaw(t, bus, "A1", "{}")
	publishRaw(t, bus, "A2", "{}")

	assert.Eventually(t, func() bool { return len(bus.Committed()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []int64{0, 1}, bus.Committed())
	assert.Equal(t, []string{"A1", "A1", "A1", "A2"}, h.Calls())
}

// Un mensaje mal formado se confirma y se descarta sin reintentos; el siguiente se procesa.
func TestConsumer_DropOnMalformed(t *testing.T) {
	bus := NewInMemoryEventBus(auctionDomain.AuctionTopic, 10)
	repo := mocks.NewInMemoryItemRepo()
	projector := auctionApp.NewProjector(auctionApp.NewMapper(), repo, zap.NewNop())
	dlq := new(mockDeadLetters)
	dlq.On("Forward", mock.Anything, mock.MatchedBy(func(m kafka.Message) bool { return m.Offset == 0 }),
		mock.MatchedBy(func(err error) bool { return errors.Is(err, auctionDomain.ErrMalformedEvent) })).
		Return(nil).Once()
	_, _ = startConsumer(t, bus, projector, WithDeadLetters(dlq))

	// Falta el campo obligatorio "title".
	publishRaw(t, bus, "A1", `{"id":"A1","type":"auction.created","payload":{"make":"Ford"}}`)
	publishRaw(t, bus, "A2", `{"id":"A2","type":"auction.created","payload":{"title":"Car"}}`)

	assert.Eventually(t, func() bool { return len(bus.Committed()) == 2 }, time.Second, time.Millisecond)
	snap := repo.Snapshot()
	assert.Len(t, snap, 1)
	assert.Equal(t, "Car", snap["A2"].Title)
	assert.Equal(t, 1, repo.UpsertCalls, "el mensaje mal formado no llega al almacén")
	dlq.AssertExpectations(t)
}

// Un panic o error inesperado en el mensaje N no impide procesar el N+1.
func TestConsumer_LivenessUnderFaultInjection(t *testing.T) {
	for name, fault := range map[string]func(){
		"panic": func() { panic("nil map write") },
		"error": func() {},
	} {
		t.Run(name, func(t *testing.T) {
			bus := NewInMemoryEventBus(auctionDomain.AuctionTopic, 10)
			h := &handlerFunc{fn: func(key string, _ []byte) error {
				if key == "N" {
					fault()
					return errors.New("unexpected")
				}
				return nil
			}}
			_, _ = startConsumer(t, bus, h)

			publishRaw(t, bus, "N", "{}")
			publishRaw(t, bus, "N+1", "{}")

			assert.Eventually(t, func() bool { return len(h.Calls()) == 2 }, time.Second, time.Millisecond)
			assert.Equal(t, []string{"N", "N+1"}, h.Calls())
			assert.Eventually(t, func() bool { return len(bus.Committed()) == 2 }, time.Second, time.Millisecond)
		})
	}
}

// flakyReader falla la primera lectura con un error que no es de cancelación.
type flakyReader struct {
	*InMemoryEventBus
	once sync.Once
}

func (r *flakyReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	var err error
	r.once.Do(func() { err = errors.New("broker not available") })
	if err != nil {
		return kafka.Message{}, err
	}
	return r.InMemoryEventBus.FetchMessage(ctx)
}

func TestConsumer_ReceiveErrorDoesNotStopLoop(t *testing.T) {
	bus := NewInMemoryEventBus(auctionDomain.AuctionTopic, 10)
	h := &handlerFunc{fn: func(string, []byte) error { return nil }}
	_, _ = startConsumer(t, &flakyReader{InMemoryEventBus: bus}, h)

	publishRaw(t, bus, "A1", "{}")

	assert.Eventually(t, func() bool { return len(bus.Committed()) == 1 }, time.Second, time.Millisecond)
}

func TestConsumer_RunReturnsOnCancellation(t *testing.T) {
	bus := NewInMemoryEventBus(auctionDomain.AuctionTopic, 10)
	h := &handlerFunc{fn: func(string, []byte) error { return nil }}
	c := NewConsumer(bus, h, auctionDomain.AuctionTopic, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	assert.Eventually(t, func() bool { return c.State() == StateReceiving }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run no terminó tras la cancelación")
	}
	assert.Equal(t, StateStopped, c.State())
	assert.Empty(t, h.Calls())
}

// Escenario completo sobre el bus en memoria y el Projector real.
func TestConsumer_EndToEndCreatedTwiceThenUpdated(t *testing.T) {
	bus := NewInMemoryEventBus(auctionDomain.AuctionTopic, 10)
	repo := mocks.NewInMemoryItemRepo()
	projector := auctionApp.NewProjector(auctionApp.NewMapper(), repo, zap.NewNop(),
		auctionApp.WithUpsertRetry(retry.Times(2, time.Millisecond)))
	_, _ = startConsumer(t, bus, projector)
	ctx := context.Background()

	created := sharedEvents.DomainEvent{ID: "A1", Type: auctionDomain.AuctionCreated, Payload: json.RawMessage(`{"title":"Car"}`)}
	require.NoError(t, bus.Publish(ctx, created))
	require.NoError(t, bus.Publish(ctx, created))

	assert.Eventually(t, func() bool { return len(bus.Committed()) == 2 }, time.Second, time.Millisecond)
	snap := repo.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "A1", snap["A1"].ID)
	assert.Equal(t, "Car", snap["A1"].Title)

	updated := sharedEvents.DomainEvent{ID: "A1", Type: auctionDomain.AuctionUpdated, Payload: json.RawMessage(`{"title":"Car (Updated)"}`)}
	require.NoError(t, bus.Publish(ctx, updated))

	assert.Eventually(t, func() bool { return len(bus.Committed()) == 3 }, time.Second, time.Millisecond)
	snap = repo.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "Car (Updated)", snap["A1"].Title)
}

func TestKafkaPublisher_ForwardAddsHeaders(t *testing.T) {
	w := &recordingWriter{}
	p := NewKafkaPublisher(w, zap.NewNop())
	msg := kafka.Message{Topic: "auction", Key: []byte("A1"), Value: []byte("{bad"), Offset: 7}

	require.NoError(t, p.Forward(context.Background(), msg, auctionDomain.MalformedEvent("missing title")))

	require.Len(t, w.msgs, 1)
	out := w.msgs[0]
	assert.Equal(t, msg.Key, out.Key)
	assert.Equal(t, msg.Value, out.Value)
	require.Len(t, out.Headers, 2)
	assert.Equal(t, "x-dlq-reason", out.Headers[0].Key)
	assert.Contains(t, string(out.Headers[0].Value), "missing title")
	assert.Equal(t, "auction", string(out.Headers[1].Value))
}

func TestKafkaPublisher_PublishUsesPartitionKey(t *testing.T) {
	w := &recordingWriter{}
	p := NewKafkaPublisher(w, zap.NewNop())

	require.NoError(t, p.Publish(context.Background(), sharedEvents.DomainEvent{ID: "A1", Type: auctionDomain.AuctionCreated}))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "A1", string(w.msgs[0].Key))
}

type recordingWriter struct {
	msgs []kafka.Message
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestPingKafka_NoBrokersIsPermanent(t *testing.T) {
	err := PingKafka(nil, nil)(context.Background())
	assert.True(t, retry.IsPermanent(err))
}

func TestClassifyKafkaError(t *testing.T) {
	assert.True(t, retry.IsPermanent(classifyKafkaError(kafka.SASLAuthenticationFailed)))
	assert.False(t, retry.IsPermanent(classifyKafkaError(errors.New("connection refused"))))

	missingPort := &net.AddrError{Err: "missing port in address", Addr: "localhost"}
	assert.True(t, retry.IsPermanent(classifyKafkaError(fmt.Errorf("dial: %w", missingPort))))

	badPort := &net.DNSError{Err: "unknown port", Name: "tcp/notaport", IsNotFound: true}
	assert.True(t, retry.IsPermanent(classifyKafkaError(&net.OpError{Op: "dial", Net: "tcp", Err: badPort})))

	hostNotYetResolvable := &net.DNSError{Err: "no such host", Name: "kafka", IsNotFound: true}
	assert.False(t, retry.IsPermanent(classifyKafkaError(hostNotYetResolvable)))
	assert.True(t, retry.IsTransient(classifyKafkaError(hostNotYetResolvable)))

	assert.True(t, retry.IsTransient(classifyKafkaError(kafka.LeaderNotAvailable)))
	assert.True(t, retry.IsTransient(classifyKafkaError(io.EOF)))
}

// Una dirección de broker mal escrita aborta el arranque en el primer intento.
func TestPingKafka_MalformedBrokerIsPermanent(t *testing.T) {
	ping := PingKafka(nil, []string{"localhost:notaport"})

	err := ping(context.Background())

	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
	assert.Equal(t, retry.Fatal, retry.TransientOn()(err))
}
