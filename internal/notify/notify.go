package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/trew/PokemonGoMapNotifier/internal/config"
	"github.com/trew/PokemonGoMapNotifier/internal/domain"
	"github.com/trew/PokemonGoMapNotifier/internal/metrics"
	"github.com/trew/PokemonGoMapNotifier/internal/permanent"
)

// Sender delivers alerts to one configured endpoint.
// Params: context and one enriched alert payload per call.
// Returns: transport error; permanent.Mark-ed errors are not retried.
type Sender interface {
	Type() string
	NotifyPokemon(ctx context.Context, alert domain.PokemonAlert) error
	NotifyRaid(ctx context.Context, alert domain.RaidAlert) error
	NotifyEgg(ctx context.Context, alert domain.RaidAlert) error
	NotifyGym(ctx context.Context, alert domain.GymAlert) error
}

// FirebaseFactory builds a messaging client from one firebase endpoint.
type FirebaseFactory func(ctx context.Context, endpoint config.Endpoint) (MessagingClient, error)

// Options overrides transport dependencies, mainly for tests.
type Options struct {
	HTTPClient      *http.Client
	PushbulletURL   string
	FirebaseFactory FirebaseFactory
}

// Dispatcher fans one alert out to every endpoint of its target.
// Params: resolved targets, per-endpoint senders and retry policies.
// Returns: delivery helper for the engine.
type Dispatcher struct {
	targets   map[string]config.Target
	endpoints map[string]config.Endpoint
	senders   map[string]Sender
	logger    *slog.Logger
}

// NewDispatcher builds senders for every configured endpoint.
// Params: context for client init, loaded config, transport options and logger.
// Returns: dispatcher or error when an endpoint cannot be initialized.
func NewDispatcher(ctx context.Context, cfg *config.Config, opts Options, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	names := make([]string, 0, len(cfg.Endpoints))
	for name := range cfg.Endpoints {
		names = append(names, name)
	}
	sort.Strings(names)

	senders := make(map[string]Sender, len(names))
	for _, name := range names {
		sender, err := NewSender(ctx, cfg.Endpoints[name], opts, logger)
		if err != nil {
			return nil, fmt.Errorf("endpoint %q: %w", name, err)
		}
		senders[name] = sender
	}
	return newDispatcher(cfg, senders, logger), nil
}

func newDispatcher(cfg *config.Config, senders map[string]Sender, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		targets:   cfg.Targets,
		endpoints: cfg.Endpoints,
		senders:   senders,
		logger:    logger,
	}
}

// NewSender creates the channel implementation for one endpoint.
// Params: context, endpoint config, transport options and logger.
// Returns: sender or error for unknown types and failed client init.
func NewSender(ctx context.Context, endpoint config.Endpoint, opts Options, logger *slog.Logger) (Sender, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	switch endpoint.Type {
	case config.EndpointSimple, config.EndpointLog:
		return NewSimpleSender(logger), nil
	case config.EndpointDiscord:
		return NewDiscordSender(endpoint, client), nil
	case config.EndpointPushbullet:
		templates, err := CompileTemplates(endpoint.Templates)
		if err != nil {
			return nil, err
		}
		return NewPushbulletSender(endpoint, opts.PushbulletURL, client, templates), nil
	case config.EndpointTelegram:
		templates, err := CompileTemplates(endpoint.Templates)
		if err != nil {
			return nil, err
		}
		return NewTelegramSender(endpoint, templates)
	case config.EndpointFirebase:
		templates, err := CompileTemplates(endpoint.Templates)
		if err != nil {
			return nil, err
		}
		factory := opts.FirebaseFactory
		if factory == nil {
			factory = NewFirebaseClient
		}
		messaging, err := factory(ctx, endpoint)
		if err != nil {
			return nil, err
		}
		return NewFirebaseSender(endpoint, messaging, templates), nil
	default:
		return nil, fmt.Errorf("unsupported endpoint type %q", endpoint.Type)
	}
}

// Deliver sends alert to every endpoint of alert.Target.
// Params: context and tagged alert.
// Returns: number of endpoints that accepted the alert; failures are logged.
func (d *Dispatcher) Deliver(ctx context.Context, alert domain.Alert) int {
	target, ok := d.targets[alert.Target]
	if !ok {
		d.logger.Warn("alert for unknown target dropped", "target", alert.Target, "kind", alert.Kind)
		return 0
	}
	delivered := 0
	for _, name := range target.Endpoints {
		sender, ok := d.senders[name]
		if !ok {
			d.logger.Error("endpoint has no sender", "endpoint", name, "target", alert.Target)
			continue
		}
		endpoint := d.endpoints[name]
		started := time.Now()
		err := d.sendWithRetry(ctx, endpoint, func(attemptCtx context.Context) error {
			return notifyOne(attemptCtx, sender, alert)
		})
		metrics.DeliveryDuration.WithLabelValues(sender.Type()).Observe(time.Since(started).Seconds())
		if err != nil {
			result := "error"
			if permanent.Is(err) {
				result = "rejected"
			}
			metrics.Deliveries.WithLabelValues(sender.Type(), result).Inc()
			d.logger.Error("notification delivery failed",
				"endpoint", name,
				"target", alert.Target,
				"kind", alert.Kind,
				"subject", alert.Subject(),
				"reason", permanent.ReasonOf(err),
				"error", err.Error(),
			)
			continue
		}
		metrics.Deliveries.WithLabelValues(sender.Type(), "ok").Inc()
		delivered++
	}
	return delivered
}

func notifyOne(ctx context.Context, sender Sender, alert domain.Alert) error {
	switch alert.Kind {
	case domain.AlertPokemon:
		if alert.Pokemon == nil {
			return permanent.Mark(errors.New("pokemon alert without payload"))
		}
		return sender.NotifyPokemon(ctx, *alert.Pokemon)
	case domain.AlertRaid:
		if alert.Raid == nil {
			return permanent.Mark(errors.New("raid alert without payload"))
		}
		return sender.NotifyRaid(ctx, *alert.Raid)
	case domain.AlertEgg:
		if alert.Raid == nil {
			return permanent.Mark(errors.New("egg alert without payload"))
		}
		return sender.NotifyEgg(ctx, *alert.Raid)
	case domain.AlertGym:
		if alert.Gym == nil {
			return permanent.Mark(errors.New("gym alert without payload"))
		}
		return sender.NotifyGym(ctx, *alert.Gym)
	default:
		return permanent.Mark(fmt.Errorf("unsupported alert kind %q", alert.Kind))
	}
}

// sendWithRetry runs send with the endpoint's fixed-delay retry policy.
// Params: endpoint policy and one-attempt send function.
// Returns: nil on success or last error after attempts are exhausted.
func (d *Dispatcher) sendWithRetry(ctx context.Context, endpoint config.Endpoint, send func(context.Context) error) error {
	attempts := endpoint.Retry.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := time.Duration(endpoint.Retry.DelayMS) * time.Millisecond
	timeout := time.Duration(endpoint.TimeoutMS) * time.Millisecond
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for attempt := 1; ; attempt++ {
		err := attemptWithTimeout(ctx, timeout, send)
		if err == nil {
			if attempt > 1 {
				d.logger.Info("notification recovered after retries", "endpoint", endpoint.Name, "attempt", attempt)
			}
			return nil
		}
		if permanent.Is(err) {
			return err
		}
		if attempt >= attempts {
			return fmt.Errorf("endpoint %s failed after %d attempts: %w", endpoint.Name, attempt, err)
		}
		d.logger.Warn("notification attempt failed", "endpoint", endpoint.Name, "attempt", attempt, "error", err.Error())

		if timer == nil {
			timer = time.NewTimer(delay)
		} else {
			timer.Reset(delay)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("endpoint %s retry canceled: %w", endpoint.Name, ctx.Err())
		case <-timer.C:
		}
	}
}

func attemptWithTimeout(ctx context.Context, timeout time.Duration, send func(context.Context) error) error {
	if timeout <= 0 {
		return send(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return send(attemptCtx)
}

// unexpectedHTTPStatusError formats non-2xx HTTP response with optional body.
// Params: sender prefix label and HTTP response pointer.
// Returns: status-only or status+body error; 4xx other than 429 is permanent.
func unexpectedHTTPStatusError(prefix string, response *http.Response) error {
	if response == nil {
		return fmt.Errorf("%s status=0", prefix)
	}
	var err error
	rawBody, readErr := io.ReadAll(io.LimitReader(response.Body, 4096))
	switch trimmedBody := strings.TrimSpace(string(rawBody)); {
	case readErr != nil:
		err = fmt.Errorf("%s status=%d (read body error: %w)", prefix, response.StatusCode, readErr)
	case trimmedBody == "":
		err = fmt.Errorf("%s status=%d", prefix, response.StatusCode)
	default:
		err = fmt.Errorf("%s status=%d body=%s", prefix, response.StatusCode, trimmedBody)
	}
	if response.StatusCode >= 400 && response.StatusCode < 500 && response.StatusCode != http.StatusTooManyRequests {
		return permanent.Reject("http_status", err)
	}
	return err
}
