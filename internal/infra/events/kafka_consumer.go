package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	auctionDomain "github.com/davicafu/auctionsearch/internal/auction/domain"
	"github.com/davicafu/auctionsearch/internal/metrics"
)

// MessageHandler define la interfaz que debe cumplir cualquier consumidor de eventos (como el Projector).
// El error decide qué pasa con el mensaje: ver Consumer.process.
type MessageHandler interface {
	HandleMessage(ctx context.Context, key string, payload []byte) error
}

// MessageReader es lo mínimo que el bucle necesita del transporte.
// *kafka.Reader lo cumple con GroupID configurado y el bus en memoria también.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// DeadLetterSink recibe los mensajes que nunca se podrán procesar.
type DeadLetterSink interface {
	Forward(ctx context.Context, msg kafka.Message, reason error) error
}

// State es el estado del bucle de consumo.
type State int32

const (
	StateStarting State = iota
	StateSubscribed
	StateReceiving
	StateProcessing
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateSubscribed:
		return "subscribed"
	case StateReceiving:
		return "receiving"
	case StateProcessing:
		return "processing"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Consumer es el único worker de consumo del proceso: lee, procesa y confirma de uno en uno.
type Consumer struct {
	reader          MessageReader
	handler         MessageHandler
	deadLetters     DeadLetterSink
	topic           string
	redeliveryDelay time.Duration
	log             *zap.Logger

	state atomic.Int32
}

type ConsumerOption func(*Consumer)

// WithDeadLetters reenvía los mensajes mal formados antes de descartarlos.
func WithDeadLetters(sink DeadLetterSink) ConsumerOption {
	return func(c *Consumer) { c.deadLetters = sink }
}

// WithRedeliveryDelay fija la espera antes de reprocesar un mensaje no confirmado.
func WithRedeliveryDelay(d time.Duration) ConsumerOption {
	return func(c *Consumer) { c.redeliveryDelay = d }
}

func NewConsumer(reader MessageReader, handler MessageHandler, topic string, log *zap.Logger, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		reader:          reader,
		handler:         handler,
		topic:           topic,
		redeliveryDelay: 5 * time.Second,
		log:             log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Consumer) State() State {
	return State(c.state.Load())
}

func (c *Consumer) setState(s State) {
	c.state.Store(int32(s))
}

// Run bloquea hasta que ctx se cancela. Un mensaje solo se confirma después de que el
// handler haya persistido su resultado; al cancelar no queda ningún mensaje a medias.
func (c *Consumer) Run(ctx context.Context) error {
	c.setState(StateStarting)
	c.log.Info("🎧 Iniciando consumidor de eventos...", zap.String("topic", c.topic))
	c.setState(StateSubscribed)

	defer func() {
		c.setState(StateStopped)
		c.log.Info("🛑 Consumidor de eventos detenido.", zap.String("topic", c.topic))
	}()

	// pending guarda un mensaje cuyo procesamiento falló por una causa pasajera:
	// se reprocesa antes de leer el siguiente para no confirmar offsets posteriores.
	var pending *kafka.Message

	for {
		if ctx.Err() != nil {
			c.setState(StateDraining)
			return nil
		}

		var msg kafka.Message
		if pending != nil {
			msg = *pending
			pending = nil
		} else {
			c.setState(StateReceiving)
			var err error
			msg, err = c.reader.FetchMessage(ctx)
			if err != nil {
				// Si el contexto se cancela, el error es normal y salimos limpiamente.
				if ctx.Err() != nil {
					c.setState(StateDraining)
					return nil
				}
				c.log.Error("Error al leer mensaje del bus", zap.String("topic", c.topic), zap.Error(err))
				if !c.wait(ctx) {
					c.setState(StateDraining)
					return nil
				}
				continue
			}
		}

		c.setState(StateProcessing)
		if requeue := c.process(ctx, msg); requeue {
			pending = &msg
			if !c.wait(ctx) {
				c.setState(StateDraining)
				return nil
			}
		}
	}
}

// process aplica la política por mensaje y devuelve true si hay que reprocesarlo.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) (requeue bool) {
	start := time.Now()
	defer func() { metrics.ObserveProcessingDuration(time.Since(start)) }()

	fields := []zap.Field{
		zap.String("topic", msg.Topic),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
		zap.String("key", string(msg.Key)),
	}

	err := c.safeHandle(ctx, msg)
	switch {
	case err == nil:
		metrics.IncMessage(metrics.OutcomeCommitted)

	case errors.Is(err, auctionDomain.ErrMalformedEvent):
		metrics.IncMessage(metrics.OutcomeDropped)
		c.log.Warn("Mensaje no procesable descartado", append(fields, zap.Error(err))...)
		c.forwardDeadLetter(ctx, msg, err)

	case errors.Is(err, auctionDomain.ErrStoreUnavailable):
		// Nunca se confirma un mensaje que no se ha persistido.
		metrics.IncMessage(metrics.OutcomeRequeued)
		if ctx.Err() == nil {
			c.log.Warn("⚠️ Almacén no disponible, el mensaje se reprocesará", append(fields, zap.Error(err))...)
		}
		return true

	default:
		metrics.IncMessage(metrics.OutcomePoison)
		c.log.Error("Error inesperado procesando mensaje, se descarta", append(fields, zap.Error(err))...)
		c.forwardDeadLetter(ctx, msg, err)
	}

	c.commit(ctx, msg, fields)
	return false
}

// safeHandle convierte un panic del handler en error para que el bucle siga vivo.
func (c *Consumer) safeHandle(ctx context.Context, msg kafka.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while handling message: %v", r)
		}
	}()
	return c.handler.HandleMessage(ctx, string(msg.Key), msg.Value)
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message, fields []zap.Field) {
	// La escritura ya está hecha: el commit usa su propio contexto para no perderse
	// justo cuando llega la señal de parada.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := c.reader.CommitMessages(commitCtx, msg); err != nil {
		// Si se pierde el commit el mensaje se volverá a entregar; el upsert es idempotente.
		c.log.Warn("⚠️ No se pudo confirmar el mensaje", append(fields, zap.Error(err))...)
	}
}

func (c *Consumer) forwardDeadLetter(ctx context.Context, msg kafka.Message, reason error) {
	if c.deadLetters == nil {
		return
	}
	if err := c.deadLetters.Forward(ctx, msg, reason); err != nil {
		c.log.Warn("⚠️ No se pudo reenviar el mensaje a dead-letter",
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
	}
}

// wait duerme redeliveryDelay; devuelve false si ctx se canceló antes.
func (c *Consumer) wait(ctx context.Context) bool {
	if c.redeliveryDelay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(c.redeliveryDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// ---------- Ciclo de vida como tarea propia ----------

// Task es un Consumer corriendo en su propia goroutine con su handle de cancelación.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

// Start lanza Run en background. Stop cancela y espera a que el bucle termine.
func (c *Consumer) Start(ctx context.Context) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		t.err = c.Run(ctx)
	}()
	return t
}

func (t *Task) Stop() error {
	t.once.Do(t.cancel)
	return t.Wait()
}

func (t *Task) Wait() error {
	<-t.done
	return t.err
}

func (t *Task) Done() <-chan struct{} {
	return t.done
}
