package selector

import "danmustream/danmuservice/internal/domain"

// Props mirrors what a front-end hands to the picker. SelectedEpisodeID is controlled by
// the owner; the view only highlights it.
type Props struct {
	Sources           []domain.DanmuResult
	Loading           bool
	SelectedEpisodeID *int64
	OnEpisodeChosen   func(episodeID int64)
}

type Screen int

const (
	ScreenLoading Screen = iota
	ScreenEmpty
	ScreenSources
	ScreenEpisodes
)

func (s Screen) String() string {
	switch s {
	case ScreenLoading:
		return "loading"
	case ScreenEmpty:
		return "empty"
	case ScreenSources:
		return "sources"
	case ScreenEpisodes:
		return "episodes"
	default:
		return "unknown"
	}
}

type SourceRow struct {
	Index        int
	ID           int64
	Title        string
	EpisodeCount int
}

type EpisodeRow struct {
	EpisodeID int64
	Title     string
	Selected  bool
}

// Frame is one render of the view. Only the rows of the current Screen are filled.
type Frame struct {
	Screen   Screen
	Sources  []SourceRow
	Source   SourceRow
	Episodes []EpisodeRow
}

type View struct {
	props   Props
	machine *Machine
}

func NewView(props Props) *View {
	v := &View{props: props}
	v.machine = NewMachine(props.Sources, v.notify)
	return v
}

func (v *View) notify(chosen EpisodeChosen) {
	if v.props.OnEpisodeChosen != nil {
		v.props.OnEpisodeChosen(chosen.EpisodeID)
	}
}

// SetSources installs a new result list and always returns the view to the source list,
// even when the new list looks identical to the old one.
func (v *View) SetSources(sources []domain.DanmuResult) {
	v.props.Sources = sources
	v.machine.Replace(sources)
}

func (v *View) SetLoading(loading bool) {
	v.props.Loading = loading
}

func (v *View) SetSelectedEpisode(episodeID *int64) {
	v.props.SelectedEpisodeID = episodeID
}

func (v *View) Phase() Phase {
	return v.machine.State().Phase()
}

func (v *View) ClickSource(index int) error {
	return v.machine.SelectSource(index)
}

func (v *View) ClickEpisode(episodeID int64) error {
	return v.machine.SelectEpisode(episodeID)
}

func (v *View) Back() {
	v.machine.Back()
}

func (v *View) Frame() Frame {
	state := v.machine.State()
	switch {
	case v.props.Loading:
		return Frame{Screen: ScreenLoading}
	case len(state.Sources) == 0:
		return Frame{Screen: ScreenEmpty}
	}

	source, ok := state.ActiveSource()
	if !ok {
		rows := make([]SourceRow, 0, len(state.Sources))
		for index, item := range state.Sources {
			rows = append(rows, sourceRow(index, item))
		}
		return Frame{Screen: ScreenSources, Sources: rows}
	}

	episodes := make([]EpisodeRow, 0, len(source.Episodes))
	for _, episode := range source.Episodes {
		episodes = append(episodes, EpisodeRow{
			EpisodeID: episode.EpisodeID,
			Title:     episode.EpisodeTitle,
			Selected:  v.props.SelectedEpisodeID != nil && *v.props.SelectedEpisodeID == episode.EpisodeID,
		})
	}
	return Frame{
		Screen:   ScreenEpisodes,
		Source:   sourceRow(state.Active, source),
		Episodes: episodes,
	}
}

func sourceRow(index int, item domain.DanmuResult) SourceRow {
	return SourceRow{
		Index:        index,
		ID:           item.ID,
		Title:        item.Title,
		EpisodeCount: len(item.Episodes),
	}
}
