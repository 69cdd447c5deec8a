package pipeline

import (
	"context"

	"ransomguard/internal/detect"
	"ransomguard/internal/model"

	"github.com/sirupsen/logrus"
)

// Store persists the records the processor produces.
type Store interface {
	InsertFileEvent(event *model.FileEvent) (int64, error)
	InsertAlert(alert *model.Alert) (int64, error)
}

// Broadcaster pushes freshly persisted records to streaming clients.
type Broadcaster interface {
	BroadcastFileEvent(event model.FileEvent)
	BroadcastAlert(alert model.Alert)
}

// Processor receives a file change event, evaluates it, persists the
// resulting records and hands alert-worthy verdicts to the notifiers.
// It is the single hand-off point between the watcher (or the file-events
// API) and everything downstream.
type Processor struct {
	engine      *detect.Engine
	store       Store
	broadcaster Broadcaster
	host        string
	logger      *logrus.Logger
}

// NewProcessor creates a processor. broadcaster may be nil.
func NewProcessor(engine *detect.Engine, store Store, broadcaster Broadcaster, host string, logger *logrus.Logger) *Processor {
	return &Processor{
		engine:      engine,
		store:       store,
		broadcaster: broadcaster,
		host:        host,
		logger:      logger,
	}
}

// Process evaluates one event, discarding the produced records. It is the
// watcher-facing entry point.
func (p *Processor) Process(ctx context.Context, event model.FileChangeEvent) error {
	_, _, err := p.Handle(ctx, event)
	return err
}

// Handle evaluates one event. A "file seen" record is written for every
// event; an alert record only when the verdict is alert-worthy. Persistence
// failures are logged and swallowed so monitoring keeps running.
func (p *Processor) Handle(ctx context.Context, event model.FileChangeEvent) (model.FileEvent, *model.Alert, error) {
	verdict := p.engine.Evaluate(event.Path, event.Action)

	fileEvent := model.FileEvent{
		Path:      event.Path,
		Action:    event.Action,
		FME:       verdict.FME,
		CreatedAt: event.ObservedAt,
	}
	if id, err := p.store.InsertFileEvent(&fileEvent); err != nil {
		p.logger.Errorf("Failed to persist file event for %s: %v", event.Path, err)
	} else {
		fileEvent.ID = id
		if p.broadcaster != nil {
			p.broadcaster.BroadcastFileEvent(fileEvent)
		}
	}

	if !verdict.AlertWorthy() {
		return fileEvent, nil, nil
	}

	alert := model.Alert{
		Host:      p.host,
		Path:      event.Path,
		Severity:  verdict.Severity,
		FME:       verdict.FME,
		ABT:       verdict.ABT,
		Category:  verdict.Category,
		Reasons:   verdict.Reasons,
		CreatedAt: event.ObservedAt,
	}
	if id, err := p.store.InsertAlert(&alert); err != nil {
		p.logger.Errorf("Failed to persist alert for %s: %v", event.Path, err)
	} else {
		alert.ID = id
		if p.broadcaster != nil {
			p.broadcaster.BroadcastAlert(alert)
		}
	}

	p.logger.Warnf("Alert created: %s - %s", alert.Category, alert.Path)
	p.engine.EmitAlert(alert)

	return fileEvent, &alert, nil
}
