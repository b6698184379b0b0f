package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"foerderbande/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

const keepAliveInterval = 5 * time.Second

// Broadcaster fans poller events out to the connected SSE clients
type Broadcaster struct {
	sync.RWMutex
	createCallClients map[string]chan models.CreateCallEvent
	statisticsClients map[string]chan models.PollStatisticsEvent
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		createCallClients: make(map[string]chan models.CreateCallEvent),
		statisticsClients: make(map[string]chan models.PollStatisticsEvent),
	}
}

func (b *Broadcaster) BroadcastCreateCall(event models.CreateCallEvent) {
	b.RLock()
	defer b.RUnlock()

	for id, client := range b.createCallClients {
		select {
		case client <- event: // Non-blocking send
		default:
			log.Warnf("Client channel full, skipping call for client: %v", id)
		}
	}
}

func (b *Broadcaster) BroadcastStatistics(event models.PollStatisticsEvent) {
	b.RLock()
	defer b.RUnlock()

	for id, client := range b.statisticsClients {
		select {
		case client <- event:
		default:
			log.Warnf("Client channel full, skipping stats for client: %v", id)
		}
	}
}

// Consume forwards poller events until the channel is closed or ctx is done
func (b *Broadcaster) Consume(ctx context.Context, events <-chan interface{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			switch event := event.(type) {
			case models.CreateCallEvent:
				b.BroadcastCreateCall(event)
			case models.PollStatisticsEvent:
				b.BroadcastStatistics(event)
			}
		}
	}
}

func (b *Broadcaster) AddClient(key string, createCallClient chan models.CreateCallEvent, statisticsClient chan models.PollStatisticsEvent) {
	b.Lock()
	defer b.Unlock()
	b.createCallClients[key] = createCallClient
	b.statisticsClients[key] = statisticsClient
	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.createCallClients),
	}).Info("Adding client to broadcaster")
}

// RemoveClient closes and forgets the client channels. Unknown keys are ignored.
func (b *Broadcaster) RemoveClient(key string) {
	b.Lock()
	defer b.Unlock()

	if client, ok := b.createCallClients[key]; ok {
		close(client)
		delete(b.createCallClients, key)
	}
	if client, ok := b.statisticsClients[key]; ok {
		close(client)
		delete(b.statisticsClients, key)
	}

	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.createCallClients),
	}).Info("Removed client from broadcaster")
}

func (b *Broadcaster) Clients() int {
	b.RLock()
	defer b.RUnlock()
	return len(b.createCallClients)
}

func (b *Broadcaster) Shutdown() {
	log.Info("Shutting down broadcaster")
	b.Lock()
	defer b.Unlock()
	for key, client := range b.createCallClients {
		close(client)
		delete(b.createCallClients, key)
	}
	for key, client := range b.statisticsClients {
		close(client)
		delete(b.statisticsClients, key)
	}
}

func writeEvent(w *bufio.Writer, event string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}

func streamEvents(bc *Broadcaster) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("Transfer-Encoding", "chunked")

		// Unique client key, needed to unsubscribe via DELETE
		key := uuid.New().String()
		createCallChannel := make(chan models.CreateCallEvent, 10)
		statisticsChannel := make(chan models.PollStatisticsEvent, 10)

		bc.AddClient(key, createCallChannel, statisticsChannel)

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			aliveTicker := time.NewTicker(keepAliveInterval)
			defer aliveTicker.Stop()
			defer func() {
				log.Infof("Cleaning up SSE stream for client: %s", key)
				bc.RemoveClient(key)
			}()

			if err := writeEvent(w, "init", []byte(key)); err != nil {
				log.Errorf("Failed to send init event: %v", err)
				return
			}

			for {
				select {
				case <-aliveTicker.C:
					if err := writeEvent(w, "ping", nil); err != nil {
						log.Warnf("Failed to send ping to client %s: %v", key, err)
						return
					}

				case event, ok := <-createCallChannel:
					if !ok {
						return
					}
					data, err := json.Marshal(event.Call)
					if err != nil {
						log.Errorf("Error marshalling call for client %s: %v", key, err)
						continue
					}
					if err := writeEvent(w, "create-call", data); err != nil {
						log.Warnf("Failed to send create-call event to client %s: %v", key, err)
						return
					}

				case event, ok := <-statisticsChannel:
					if !ok {
						return
					}
					data, err := json.Marshal(event.Stats)
					if err != nil {
						log.Errorf("Error marshalling stats for client %s: %v", key, err)
						continue
					}
					if err := writeEvent(w, "statistics", data); err != nil {
						log.Warnf("Failed to send statistics event to client %s: %v", key, err)
						return
					}
				}
			}
		}))

		return nil
	}
}
