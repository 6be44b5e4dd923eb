package ingest

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/trew/PokemonGoMapNotifier/internal/domain"
	"github.com/trew/PokemonGoMapNotifier/internal/metrics"
)

// EventSink receives decoded envelopes from ingest interfaces.
// Params: decoded envelopes in arrival order.
// Returns: enqueue error.
type EventSink interface {
	Push(envelope domain.Envelope) error
	PushBatch(envelopes []domain.Envelope) error
}

// HTTPHandler decodes webhook envelopes and forwards them to sink.
// Params: sink receives envelopes, max body limits payload size.
// Returns: HTTP handler for the webhook endpoint.
type HTTPHandler struct {
	sink        EventSink
	maxBodySize int64
	logger      *slog.Logger
}

// NewHTTPHandler creates webhook HTTP handler.
// Params: sink, max request body size in bytes and optional logger.
// Returns: configured handler.
func NewHTTPHandler(sink EventSink, maxBodySize int64, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{sink: sink, maxBodySize: maxBodySize, logger: logger}
}

// ServeHTTP handles one webhook request with one envelope or an array of them.
// Params: HTTP request/response writer pair.
// Returns: writes status code according to decode/push result.
func (h *HTTPHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	request.Body = http.MaxBytesReader(writer, request.Body, h.maxBodySize)
	defer request.Body.Close()
	body, err := io.ReadAll(request.Body)
	if err != nil {
		writer.WriteHeader(http.StatusBadRequest)
		return
	}

	envelopes, err := domain.DecodeEnvelopes(body)
	if err != nil {
		metrics.EventsDropped.WithLabelValues("decode").Inc()
		h.logger.Debug("webhook decode failed", "error", err.Error())
		writer.WriteHeader(http.StatusBadRequest)
		return
	}
	countReceived("http", envelopes)

	if len(envelopes) == 1 {
		err = h.sink.Push(envelopes[0])
	} else {
		err = h.sink.PushBatch(envelopes)
	}
	if err != nil {
		h.logger.Warn("webhook enqueue failed", "error", err.Error())
		writer.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	writer.WriteHeader(http.StatusAccepted)
}

// unknownTypeLabel bounds the type label for client-supplied discriminators.
const unknownTypeLabel = "unknown"

func countReceived(source string, envelopes []domain.Envelope) {
	for _, envelope := range envelopes {
		metrics.EventsReceived.WithLabelValues(source, typeLabel(envelope.Type)).Inc()
	}
}

func typeLabel(eventType domain.EventType) string {
	if eventType.Known() {
		return string(eventType)
	}
	return unknownTypeLabel
}
