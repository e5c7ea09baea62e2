// Package selector turns a list of danmu sources into a two-level pick flow: choose a
// source, then choose one of its episodes. Transitions are pure functions of
// (State, Event); Machine adds the episode-chosen notification on top.
package selector

import (
	"errors"
	"fmt"

	"danmustream/danmuservice/internal/domain"
)

var (
	ErrUnknownSource  = errors.New("unknown danmu source")
	ErrNoActiveSource = errors.New("no danmu source selected")
	ErrUnknownEpisode = errors.New("episode not in active source")
)

type Phase int

const (
	Listing Phase = iota
	Detail
)

func (p Phase) String() string {
	switch p {
	case Listing:
		return "listing"
	case Detail:
		return "detail"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is the whole selection state. Active indexes Sources; -1 means Listing.
type State struct {
	Sources []domain.DanmuResult
	Active  int
}

func NewState(sources []domain.DanmuResult) State {
	return State{
		Sources: append([]domain.DanmuResult(nil), sources...),
		Active:  -1,
	}
}

func (s State) Phase() Phase {
	if s.Active >= 0 && s.Active < len(s.Sources) {
		return Detail
	}
	return Listing
}

func (s State) ActiveSource() (domain.DanmuResult, bool) {
	if s.Phase() != Detail {
		return domain.DanmuResult{}, false
	}
	return s.Sources[s.Active], true
}

type Event interface {
	event()
}

type SelectSource struct {
	Index int
}

type Back struct{}

type SelectEpisode struct {
	EpisodeID int64
}

// Replace installs a new source list, typically the results of a new search.
type Replace struct {
	Sources []domain.DanmuResult
}

func (SelectSource) event()  {}
func (Back) event()          {}
func (SelectEpisode) event() {}
func (Replace) event()       {}

// EpisodeChosen is emitted once for every accepted SelectEpisode.
type EpisodeChosen struct {
	EpisodeID int64
}

// Reduce applies event to state. On error the returned state equals the input state and
// nothing is emitted.
func Reduce(state State, event Event) (State, *EpisodeChosen, error) {
	switch ev := event.(type) {
	case SelectSource:
		if ev.Index < 0 || ev.Index >= len(state.Sources) {
			return state, nil, fmt.Errorf("%w: index %d of %d", ErrUnknownSource, ev.Index, len(state.Sources))
		}
		state.Active = ev.Index
		return state, nil, nil
	case Back:
		state.Active = -1
		return state, nil, nil
	case SelectEpisode:
		source, ok := state.ActiveSource()
		if !ok {
			return state, nil, ErrNoActiveSource
		}
		for _, episode := range source.Episodes {
			if episode.EpisodeID == ev.EpisodeID {
				return state, &EpisodeChosen{EpisodeID: episode.EpisodeID}, nil
			}
		}
		return state, nil, fmt.Errorf("%w: %d", ErrUnknownEpisode, ev.EpisodeID)
	case Replace:
		return NewState(ev.Sources), nil, nil
	case nil:
		return state, nil, errors.New("nil selector event")
	default:
		return state, nil, fmt.Errorf("unsupported selector event %T", event)
	}
}

// Machine owns a State and forwards EpisodeChosen messages to its owner.
type Machine struct {
	state State
	emit  func(EpisodeChosen)
}

func NewMachine(sources []domain.DanmuResult, emit func(EpisodeChosen)) *Machine {
	return &Machine{
		state: NewState(sources),
		emit:  emit,
	}
}

func (m *Machine) Dispatch(event Event) error {
	next, chosen, err := Reduce(m.state, event)
	if err != nil {
		return err
	}
	m.state = next
	if chosen != nil && m.emit != nil {
		m.emit(*chosen)
	}
	return nil
}

func (m *Machine) State() State {
	return m.state
}

func (m *Machine) SelectSource(index int) error {
	return m.Dispatch(SelectSource{Index: index})
}

func (m *Machine) Back() {
	_ = m.Dispatch(Back{})
}

func (m *Machine) SelectEpisode(episodeID int64) error {
	return m.Dispatch(SelectEpisode{EpisodeID: episodeID})
}

func (m *Machine) Replace(sources []domain.DanmuResult) {
	_ = m.Dispatch(Replace{Sources: sources})
}
