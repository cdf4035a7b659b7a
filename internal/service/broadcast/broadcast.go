// Package broadcast is the fire-and-forget realtime channel. Engine services
// publish after their transaction commits; delivery failures are logged and
// never surface to the caller.
package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventSeatChange         EventType = "seat_change"
	EventHandStarted        EventType = "hand_started"
	EventHandUpdate         EventType = "hand_update"
	EventHandComplete       EventType = "hand_complete"
	EventElimination        EventType = "elimination"
	EventBalance            EventType = "balance"
	EventTableClosing       EventType = "table_closing"
	EventCloseCancelled     EventType = "close_cancelled"
	EventTableClosed        EventType = "table_closed"
	EventTournamentComplete EventType = "tournament_complete"
)

type Event struct {
	ID           string      `json:"id"`
	Type         EventType   `json:"type"`
	TableID      int64       `json:"tableId,omitempty,string"`
	TournamentID int64       `json:"tournamentId,omitempty,string"`
	HandID       int64       `json:"handId,omitempty,string"`
	StateVersion int64       `json:"stateVersion,omitempty"`
	Data         interface{} `json:"data,omitempty"`
	At           time.Time   `json:"at"`
}

func NewEvent(typ EventType) Event {
	return Event{ID: uuid.NewString(), Type: typ, At: time.Now()}
}

func (e Event) ForTable(tableID int64) Event {
	e.TableID = tableID
	return e
}

func (e Event) ForTournament(tournamentID int64) Event {
	e.TournamentID = tournamentID
	return e
}

func (e Event) ForHand(handID, version int64) Event {
	e.HandID = handID
	e.StateVersion = version
	return e
}

func (e Event) With(data interface{}) Event {
	e.Data = data
	return e
}

type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

// Subscriber streams raw event payloads for one topic until cancel is called.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (msgs <-chan []byte, cancel func(), err error)
}

func TableTopic(prefix string, tableID int64) string {
	return fmt.Sprintf("%s.table.%d", prefix, tableID)
}

func TournamentTopic(prefix string, tournamentID int64) string {
	return fmt.Sprintf("%s.tournament.%d", prefix, tournamentID)
}

func topicsFor(prefix string, evt Event) []string {
	topics := make([]string, 0, 2)
	if evt.TableID != 0 {
		topics = append(topics, TableTopic(prefix, evt.TableID))
	}
	if evt.TournamentID != 0 {
		topics = append(topics, TournamentTopic(prefix, evt.TournamentID))
	}
	return topics
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) OfType(typ EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0)
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
