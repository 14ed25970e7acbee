package table

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/imgajeed76/gridsync/internal/fetch"
	"github.com/imgajeed76/gridsync/internal/grid"
	"github.com/imgajeed76/gridsync/internal/logging"
	"github.com/imgajeed76/gridsync/internal/record"
	"github.com/imgajeed76/gridsync/internal/ui/styles"
	"github.com/imgajeed76/gridsync/internal/util"
	"github.com/imgajeed76/gridsync/internal/viewstate"
)

// ═══════════════════════════════════════════════════════════════════════════
// Constants
// ═══════════════════════════════════════════════════════════════════════════

const (
	maxColWidth = 32
	minColWidth = 4
	markerWidth = 2 // selection checkbox + space
	chromeLines = 7 // title, summary, header, separator, footer (3)
)

type tableMode int

const (
	modeNormal tableMode = iota
	modeSearch
	modeFilter
)

// Grid is the controller type the TUI drives.
type Grid = grid.Controller[record.Record]

// Options configures Run.
type Options struct {
	Title string
	// ShareURL is prefixed to the query string copied with "u".
	ShareURL string
	Logger   *zap.Logger
}

// ═══════════════════════════════════════════════════════════════════════════
// Model
// ═══════════════════════════════════════════════════════════════════════════

type tableModel struct {
	ctx    context.Context
	ctrl   *Grid
	opts   Options
	logger *zap.Logger

	snap    grid.Snapshot[record.Record]
	lastSeq uint64

	cursor    int // row on the loaded page
	colCursor int // index into snap.Columns
	firstCol  int // first rendered column
	scrollY   int
	width     int
	height    int
	ready     bool

	mode        tableMode
	searchInput textinput.Model
	spin        spinner.Model

	// filter picker
	dimIdx    int
	optCursor int

	statusMsg   string
	statusErr   bool
	statusUntil time.Time

	copyText func(string) error
}

// changedMsg tells the model the controller has something new to show.
type changedMsg struct{ seq uint64 }

type bulkDoneMsg struct {
	rows int
	err  error
}

type statusClearMsg struct{}

// ═══════════════════════════════════════════════════════════════════════════
// Key Bindings
// ═══════════════════════════════════════════════════════════════════════════

type tableKeyMap struct {
	Up, Down, Left, Right key.Binding
	NextPage, PrevPage    key.Binding
	Grow, Shrink          key.Binding
	Sort                  key.Binding
	Search                key.Binding
	Filter, ClearFilters  key.Binding
	Hide, ShowAll         key.Binding
	Select, SelectPage    key.Binding
	ClearSelection        key.Binding
	Delete                key.Binding
	Refresh               key.Binding
	YankCell, YankURL     key.Binding
	Quit                  key.Binding
}

var tableKeys = tableKeyMap{
	Up:             key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:           key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Left:           key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←", "prev column")),
	Right:          key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→", "next column")),
	NextPage:       key.NewBinding(key.WithKeys("n", "pgdown"), key.WithHelp("n", "next page")),
	PrevPage:       key.NewBinding(key.WithKeys("p", "pgup"), key.WithHelp("p", "prev page")),
	Grow:           key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "bigger pages")),
	Shrink:         key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "smaller pages")),
	Sort:           key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sort")),
	Search:         key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
	Filter:         key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "filters")),
	ClearFilters:   key.NewBinding(key.WithKeys("F"), key.WithHelp("F", "clear filters")),
	Hide:           key.NewBinding(key.WithKeys("H"), key.WithHelp("H", "hide column")),
	ShowAll:        key.NewBinding(key.WithKeys("U"), key.WithHelp("U", "show all columns")),
	Select:         key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "select")),
	SelectPage:     key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "select page")),
	ClearSelection: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear selection")),
	Delete:         key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
	Refresh:        key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	YankCell:       key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy cell")),
	YankURL:        key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "copy link")),
	Quit:           key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

var (
	keyConfirm   = key.NewBinding(key.WithKeys("y", "enter"))
	keyCancel    = key.NewBinding(key.WithKeys("n", "esc"))
	keyNextDim   = key.NewBinding(key.WithKeys("tab", "right", "l"))
	keyPrevDim   = key.NewBinding(key.WithKeys("shift+tab", "left", "h"))
	keyToggleOpt = key.NewBinding(key.WithKeys(" ", "space", "enter"))
	keyClearDim  = key.NewBinding(key.WithKeys("x"))
	keyClose     = key.NewBinding(key.WithKeys("esc", "f", "q"))
)

// ═══════════════════════════════════════════════════════════════════════════
// Entry Point
// ═══════════════════════════════════════════════════════════════════════════

// Run shows ctrl in an interactive table until the user quits. ctrl must be
// mounted.
func Run(ctx context.Context, ctrl *Grid, opts Options) error {
	m := newTableModel(ctx, ctrl, opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	stop := ctrl.Subscribe(func(s grid.Snapshot[record.Record]) {
		// Listeners may run inside Update; Send would block the event loop.
		go p.Send(changedMsg{seq: s.Seq})
	})
	defer stop()

	_, err := p.Run()
	return err
}

func newTableModel(ctx context.Context, ctrl *Grid, opts Options) tableModel {
	ti := textinput.New()
	ti.Placeholder = "search..."
	ti.CharLimit = 200
	ti.Width = 40

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = lipgloss.NewStyle().Foreground(styles.Accent)

	logger := logging.OrNop(opts.Logger)

	m := tableModel{
		ctx:         ctx,
		ctrl:        ctrl,
		opts:        opts,
		logger:      logger,
		searchInput: ti,
		spin:        sp,
		copyText:    clipboard.WriteAll,
	}
	m.pull()
	return m
}

// ═══════════════════════════════════════════════════════════════════════════
// Bubble Tea Interface
// ═══════════════════════════════════════════════════════════════════════════

func (m tableModel) Init() tea.Cmd {
	if styles.IsAccessible() {
		return nil
	}
	return m.spin.Tick
}

func (m tableModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.ensureRowVisible()
		return m, nil

	case changedMsg:
		if msg.seq != 0 && msg.seq <= m.lastSeq {
			return m, nil
		}
		m.lastSeq = msg.seq
		m.pull()
		return m, nil

	case bulkDoneMsg:
		m.pull()
		if msg.err != nil {
			return m, m.setError(msg.err)
		}
		return m, m.setStatus(fmt.Sprintf("Deleted %d %s", msg.rows, plural(msg.rows, "row")))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case statusClearMsg:
		if !m.statusUntil.IsZero() && time.Now().After(m.statusUntil) {
			m.statusMsg = ""
			m.statusUntil = time.Time{}
		}
		return m, nil

	case tea.KeyMsg:
		if m.snap.Dialog.Open {
			return m.updateDialog(msg)
		}
		switch m.mode {
		case modeSearch:
			return m.updateSearch(msg)
		case modeFilter:
			return m.updateFilter(msg)
		}
		return m.updateNormal(msg)
	}
	return m, nil
}

func (m tableModel) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var err error

	switch {
	case key.Matches(msg, tableKeys.Quit):
		return m, tea.Quit

	case key.Matches(msg, tableKeys.Up):
		if m.cursor > 0 {
			m.cursor--
			m.ensureRowVisible()
		}
		return m, nil

	case key.Matches(msg, tableKeys.Down):
		if m.cursor < len(m.snap.Result.Rows)-1 {
			m.cursor++
			m.ensureRowVisible()
		}
		return m, nil

	case key.Matches(msg, tableKeys.Left):
		if m.colCursor > 0 {
			m.colCursor--
			m.ensureColVisible()
		}
		return m, nil

	case key.Matches(msg, tableKeys.Right):
		if m.colCursor < len(m.snap.Columns)-1 {
			m.colCursor++
			m.ensureColVisible()
		}
		return m, nil

	case key.Matches(msg, tableKeys.NextPage):
		if err = m.ctrl.NextPage(); err == nil {
			m.cursor, m.scrollY = 0, 0
		}

	case key.Matches(msg, tableKeys.PrevPage):
		if err = m.ctrl.PrevPage(); err == nil {
			m.cursor, m.scrollY = 0, 0
		}

	case key.Matches(msg, tableKeys.Grow):
		err = m.ctrl.StepPageSize(1)

	case key.Matches(msg, tableKeys.Shrink):
		err = m.ctrl.StepPageSize(-1)

	case key.Matches(msg, tableKeys.Sort):
		col, ok := m.cursorColumn()
		if !ok {
			return m, nil
		}
		if !col.Sortable {
			return m, m.setStatus(fmt.Sprintf("%s is not sortable", columnTitle(col)))
		}
		err = m.ctrl.CycleSort(col.ID)

	case key.Matches(msg, tableKeys.Search):
		m.mode = modeSearch
		m.searchInput.SetValue(m.snap.State.Search)
		m.searchInput.CursorEnd()
		m.searchInput.Focus()
		return m, textinput.Blink

	case key.Matches(msg, tableKeys.Filter):
		if len(m.ctrl.Schema().Dimensions) == 0 {
			return m, m.setStatus("This table has no filters")
		}
		m.mode = modeFilter
		m.optCursor = 0
		return m, nil

	case key.Matches(msg, tableKeys.ClearFilters):
		err = m.ctrl.ClearFilters()

	case key.Matches(msg, tableKeys.Hide):
		col, ok := m.cursorColumn()
		if !ok {
			return m, nil
		}
		if len(m.snap.Columns) == 1 {
			return m, m.setStatus("Cannot hide the last column")
		}
		err = m.ctrl.SetColumnVisible(col.ID, false)

	case key.Matches(msg, tableKeys.ShowAll):
		for id := range m.snap.State.Hidden {
			if err = m.ctrl.SetColumnVisible(id, true); err != nil {
				break
			}
		}

	case key.Matches(msg, tableKeys.Select):
		if id, ok := m.cursorRowID(); ok {
			err = m.ctrl.ToggleRow(id)
		}

	case key.Matches(msg, tableKeys.SelectPage):
		err = m.ctrl.SelectPage()

	case key.Matches(msg, tableKeys.ClearSelection):
		err = m.ctrl.ClearSelection()

	case key.Matches(msg, tableKeys.Delete):
		if len(m.snap.State.Selection) > 0 {
			err = m.ctrl.RequestDelete()
		} else if id, ok := m.cursorRowID(); ok {
			err = m.ctrl.RequestDelete(id)
		}

	case key.Matches(msg, tableKeys.Refresh):
		err = m.ctrl.Refresh()

	case key.Matches(msg, tableKeys.YankCell):
		return m, m.yankCell()

	case key.Matches(msg, tableKeys.YankURL):
		return m, m.yankURL()

	default:
		return m, nil
	}

	m.pull()
	if err != nil {
		return m, m.setError(err)
	}
	return m, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Search, filter picker and delete dialog
// ═══════════════════════════════════════════════════════════════════════════

func (m tableModel) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.mode = modeNormal
		m.searchInput.Blur()
		err := m.ctrl.SetSearch(strings.TrimSpace(m.searchInput.Value()))
		m.pull()
		if err != nil {
			return m, m.setError(err)
		}
		return m, nil
	case tea.KeyEsc:
		m.mode = modeNormal
		m.searchInput.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

func (m tableModel) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	dims := m.ctrl.Schema().Dimensions
	dim := dims[m.dimIdx]
	options := m.ctrl.Options(dim.ID)

	var err error
	switch {
	case key.Matches(msg, keyClose):
		m.mode = modeNormal
		return m, nil
	case key.Matches(msg, keyNextDim):
		m.dimIdx = (m.dimIdx + 1) % len(dims)
		m.optCursor = 0
		return m, nil
	case key.Matches(msg, keyPrevDim):
		m.dimIdx = (m.dimIdx + len(dims) - 1) % len(dims)
		m.optCursor = 0
		return m, nil
	case key.Matches(msg, tableKeys.Up):
		if m.optCursor > 0 {
			m.optCursor--
		}
		return m, nil
	case key.Matches(msg, tableKeys.Down):
		if m.optCursor < len(options)-1 {
			m.optCursor++
		}
		return m, nil
	case key.Matches(msg, keyToggleOpt):
		if m.optCursor >= len(options) {
			return m, nil
		}
		err = m.ctrl.ToggleFilter(dim.ID, options[m.optCursor].ID)
	case key.Matches(msg, keyClearDim):
		err = m.ctrl.SetFilter(dim.ID)
	default:
		return m, nil
	}

	m.pull()
	if n := len(m.ctrl.Options(dim.ID)); m.optCursor >= n {
		m.optCursor = max(n-1, 0)
	}
	if err != nil {
		return m, m.setError(err)
	}
	return m, nil
}

func (m tableModel) updateDialog(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.snap.Dialog.Busy {
		return m, nil
	}
	switch {
	case key.Matches(msg, keyConfirm):
		ctrl, ctx, n := m.ctrl, m.ctx, len(m.snap.Dialog.IDs)
		return m, func() tea.Msg {
			return bulkDoneMsg{rows: n, err: ctrl.ConfirmBulk(ctx)}
		}
	case key.Matches(msg, keyCancel):
		err := m.ctrl.CancelBulk()
		m.pull()
		if err != nil {
			return m, m.setError(err)
		}
	}
	return m, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// State helpers
// ═══════════════════════════════════════════════════════════════════════════

// pull replaces the snapshot with the controller's current one.
func (m *tableModel) pull() {
	m.snap = m.ctrl.Snapshot()
	if n := len(m.snap.Result.Rows); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
	if n := len(m.snap.Columns); m.colCursor >= n {
		m.colCursor = max(n-1, 0)
	}
	if m.firstCol > m.colCursor {
		m.firstCol = m.colCursor
	}
	m.ensureRowVisible()
}

func (m tableModel) cursorColumn() (viewstate.Column, bool) {
	if m.colCursor >= len(m.snap.Columns) {
		return viewstate.Column{}, false
	}
	return m.snap.Columns[m.colCursor], true
}

func (m tableModel) cursorRow() (record.Record, bool) {
	if m.cursor >= len(m.snap.Result.Rows) {
		return nil, false
	}
	return m.snap.Result.Rows[m.cursor], true
}

func (m tableModel) cursorRowID() (string, bool) {
	row, ok := m.cursorRow()
	if !ok {
		return "", false
	}
	return m.ctrl.RowID(row), true
}

const statusDuration = 2 * time.Second

// setStatus sets a temporary status message that auto-clears.
func (m *tableModel) setStatus(msg string) tea.Cmd {
	m.statusMsg = msg
	m.statusErr = false
	m.statusUntil = time.Now().Add(statusDuration)
	return tea.Tick(statusDuration, func(time.Time) tea.Msg {
		return statusClearMsg{}
	})
}

func (m *tableModel) setError(err error) tea.Cmd {
	m.logger.Debug("table action failed", zap.Error(err))
	cmd := m.setStatus(err.Error())
	m.statusErr = true
	return cmd
}

// yankCell copies the cursor cell to the system clipboard.
func (m *tableModel) yankCell() tea.Cmd {
	row, ok := m.cursorRow()
	col, ok2 := m.cursorColumn()
	if !ok || !ok2 {
		return nil
	}
	val := row.String(col.ID)
	if err := m.copyText(val); err != nil {
		return m.setError(fmt.Errorf("clipboard: %w", err))
	}
	return m.setStatus("Copied: " + util.Truncate(val, 40))
}

// yankURL copies the share link of the current view.
func (m *tableModel) yankURL() tea.Cmd {
	link := shareLink(m.opts.ShareURL, m.snap.Query)
	if err := m.copyText(link); err != nil {
		return m.setError(fmt.Errorf("clipboard: %w", err))
	}
	return m.setStatus("Copied link: " + util.Truncate(link, 60))
}

func shareLink(base, query string) string {
	switch {
	case query == "":
		return base
	case base == "":
		return "?" + query
	case strings.Contains(base, "?"):
		return base + "&" + query
	}
	return base + "?" + query
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// ═══════════════════════════════════════════════════════════════════════════
// Layout
// ═══════════════════════════════════════════════════════════════════════════

func (m tableModel) visibleRowCount() int {
	return max(m.height-chromeLines, 1)
}

func (m *tableModel) ensureRowVisible() {
	visible := m.visibleRowCount()
	if m.cursor < m.scrollY {
		m.scrollY = m.cursor
	} else if m.cursor >= m.scrollY+visible {
		m.scrollY = m.cursor - visible + 1
	}
	if m.scrollY < 0 {
		m.scrollY = 0
	}
}

// ensureColVisible moves firstCol so the cursor column is rendered.
func (m *tableModel) ensureColVisible() {
	if m.colCursor < m.firstCol {
		m.firstCol = m.colCursor
		return
	}
	widths := m.columnWidths()
	for m.firstCol < m.colCursor && !m.fits(widths, m.firstCol, m.colCursor) {
		m.firstCol++
	}
}

// fits reports whether columns from..to fit the terminal width.
func (m tableModel) fits(widths []int, from, to int) bool {
	if m.width <= 0 {
		return true
	}
	total := markerWidth
	for i := from; i <= to; i++ {
		total += widths[i] + 2
	}
	return total <= m.width
}

// columnWidths sizes each visible column to its content, within bounds.
func (m tableModel) columnWidths() []int {
	cols := m.snap.Columns
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = lipgloss.Width(columnTitle(c)) + 2 // room for the sort marker
		for _, r := range m.snap.Result.Rows {
			widths[i] = max(widths[i], lipgloss.Width(r.String(c.ID)))
		}
		widths[i] = min(max(widths[i], minColWidth), maxColWidth)
	}
	return widths
}

// ═══════════════════════════════════════════════════════════════════════════
// View
// ═══════════════════════════════════════════════════════════════════════════

func (m tableModel) View() string {
	if !m.ready {
		return "Loading..."
	}

	var sb strings.Builder
	sb.WriteString(m.renderTitle())
	sb.WriteString("\n")
	sb.WriteString(m.renderSummary())
	sb.WriteString("\n")

	if m.mode == modeFilter {
		sb.WriteString(m.renderPicker())
	} else {
		sb.WriteString(m.renderTable())
	}

	if d := m.snap.Dialog; d.Open {
		sb.WriteString("\n")
		sb.WriteString(m.renderDialog())
	}

	sb.WriteString("\n")
	sb.WriteString(m.renderFooter())
	return sb.String()
}

func (m tableModel) renderTitle() string {
	res := m.snap.Result
	title := m.opts.Title
	if title == "" {
		title = "table"
	}

	parts := []string{
		styles.Render(styles.TitleStyle, title),
		fmt.Sprintf("page %d/%d", m.snap.State.PageIndex+1, max(m.snap.PageCount, 1)),
		fmt.Sprintf("%d %s", res.Total, plural(res.Total, "row")),
	}
	if n := len(m.snap.State.Selection); n > 0 {
		parts = append(parts, styles.Render(styles.FilterStyle, fmt.Sprintf("%d selected", n)))
	}
	switch res.Status {
	case fetch.StatusLoading:
		indicator := "loading"
		if !styles.IsAccessible() {
			indicator = m.spin.View() + " loading"
		}
		parts = append(parts, indicator)
	case fetch.StatusError:
		parts = append(parts, styles.Render(styles.WarningStyle, "stale"))
	case fetch.StatusSuccess:
		parts = append(parts, styles.Mute("updated "+util.Since(res.UpdatedAt)))
	}
	return strings.Join(parts, styles.Mute("  ·  "))
}

func (m tableModel) renderSummary() string {
	if m.mode == modeSearch {
		return "/" + m.searchInput.View()
	}

	st := m.snap.State
	var parts []string
	if st.Search != "" {
		parts = append(parts, "search: "+st.Search)
	}
	for _, d := range m.ctrl.Schema().Dimensions {
		if values := st.FilterValues(d.ID); len(values) > 0 {
			parts = append(parts, styles.Render(styles.FilterStyle, dimTitle(d)+"="+strings.Join(values, ",")))
		}
	}
	if st.Sort != nil {
		parts = append(parts, "sort: "+st.Sort.Column+" "+styles.SortMarker(st.Sort.Desc))
	}
	if len(parts) == 0 {
		return styles.Mute("all rows")
	}
	return strings.Join(parts, "  ")
}

func dimTitle(d viewstate.Dimension) string {
	if d.Title != "" {
		return d.Title
	}
	return d.ID
}

func (m tableModel) renderTable() string {
	cols := m.snap.Columns
	if len(cols) == 0 {
		return "No columns"
	}
	res := m.snap.Result
	if len(res.Rows) == 0 {
		switch res.Status {
		case fetch.StatusIdle, fetch.StatusLoading:
			return styles.Mute("Loading rows...")
		case fetch.StatusError:
			return styles.Mute("No rows loaded")
		}
		return styles.Mute("No matching rows")
	}

	widths := m.columnWidths()
	last := m.firstCol
	for last+1 < len(cols) && m.fits(widths, m.firstCol, last+1) {
		last++
	}

	var sb strings.Builder
	sort := m.snap.State.Sort

	// Header
	sb.WriteString(strings.Repeat(" ", markerWidth))
	for i := m.firstCol; i <= last; i++ {
		title := columnTitle(cols[i])
		if sort != nil && sort.Column == cols[i].ID {
			title += " " + styles.SortMarker(sort.Desc)
		}
		cell := padCell(title, widths[i])
		if i == m.colCursor {
			sb.WriteString(styles.Render(styles.HeaderCursorStyle, cell))
		} else {
			sb.WriteString(styles.Render(styles.HeaderStyle, cell))
		}
		sb.WriteString("  ")
	}
	sb.WriteString("\n")

	sb.WriteString(strings.Repeat(" ", markerWidth))
	for i := m.firstCol; i <= last; i++ {
		sb.WriteString(styles.Mute(strings.Repeat("─", widths[i])))
		sb.WriteString("  ")
	}
	sb.WriteString("\n")

	end := min(m.scrollY+m.visibleRowCount(), len(res.Rows))
	for r := m.scrollY; r < end; r++ {
		row := res.Rows[r]
		selected := m.snap.State.Selection.Has(m.ctrl.RowID(row))
		sb.WriteString(styles.Checkbox(selected))
		sb.WriteString(" ")
		for i := m.firstCol; i <= last; i++ {
			cell := padCell(row.String(cols[i].ID), widths[i])
			switch {
			case r == m.cursor && i == m.colCursor:
				cell = styles.Render(styles.CursorCellStyle, cell)
			case r == m.cursor:
				cell = styles.Render(styles.CursorRowStyle, cell)
			case selected:
				cell = styles.Render(styles.SelectedRowStyle, cell)
			}
			sb.WriteString(cell)
			sb.WriteString("  ")
		}
		sb.WriteString("\n")
	}

	var indicators []string
	if m.firstCol > 0 {
		indicators = append(indicators, "◀")
	}
	if last < len(cols)-1 {
		indicators = append(indicators, "▶")
	}
	if m.scrollY > 0 {
		indicators = append(indicators, "▲")
	}
	if end < len(res.Rows) {
		indicators = append(indicators, "▼")
	}
	if len(indicators) > 0 {
		sb.WriteString(styles.Mute(strings.Join(indicators, " ")))
	}
	return sb.String()
}

// padCell truncates or pads s to exactly width cells.
func padCell(s string, width int) string {
	s = util.Truncate(s, width)
	if n := lipgloss.Width(s); n < width {
		s += strings.Repeat(" ", width-n)
	}
	return s
}

func (m tableModel) renderPicker() string {
	dims := m.ctrl.Schema().Dimensions
	var sb strings.Builder

	tabs := make([]string, len(dims))
	for i, d := range dims {
		label := dimTitle(d)
		if n := len(m.snap.State.Filters[d.ID]); n > 0 {
			label += fmt.Sprintf(" (%d)", n)
		}
		if i == m.dimIdx {
			tabs[i] = styles.Render(styles.HeaderCursorStyle, label)
		} else {
			tabs[i] = styles.Render(styles.HeaderStyle, label)
		}
	}
	sb.WriteString(strings.Join(tabs, "   "))
	sb.WriteString("\n")

	dim := dims[m.dimIdx]
	if note := m.cascadeNote(dim); note != "" {
		sb.WriteString(styles.Mute(note))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	for _, u := range m.snap.Unavailable {
		if u == dim.ID {
			sb.WriteString(styles.WarningMsg("Options could not be loaded; press r in the table to retry"))
			sb.WriteString("\n")
			return sb.String()
		}
	}

	options := m.ctrl.Options(dim.ID)
	if len(options) == 0 {
		sb.WriteString(styles.Mute("No options"))
		sb.WriteString("\n")
		return sb.String()
	}
	selected := m.snap.State.Filters[dim.ID]
	for i, o := range options {
		line := fmt.Sprintf("%s %s", styles.Checkbox(selected.Has(o.ID)), o.Label)
		if o.Label == "" {
			line = fmt.Sprintf("%s %s", styles.Checkbox(selected.Has(o.ID)), o.ID)
		}
		if i == m.optCursor {
			line = styles.Render(styles.CursorRowStyle, line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// cascadeNote names the dimension narrowing dim, when it has a selection,
// and the dimensions dim narrows.
func (m tableModel) cascadeNote(dim viewstate.Dimension) string {
	schema := m.ctrl.Schema()
	title := func(id string) string {
		if d, ok := schema.Dimension(id); ok {
			return dimTitle(d)
		}
		return id
	}

	var parts []string
	if p := m.ctrl.Parent(dim.ID); p != "" && len(m.snap.State.Filters[p]) > 0 {
		parts = append(parts, "Narrowed by "+title(p))
	}
	if deps := m.ctrl.Dependents(dim.ID); len(deps) > 0 {
		names := make([]string, len(deps))
		for i, d := range deps {
			names[i] = title(d)
		}
		parts = append(parts, "Narrows "+strings.Join(names, ", "))
	}
	return strings.Join(parts, " · ")
}

func (m tableModel) renderDialog() string {
	d := m.snap.Dialog
	n := len(d.IDs)

	var body strings.Builder
	fmt.Fprintf(&body, "%s %d %s?", capitalize(d.Operation), n, plural(n, "row"))
	switch {
	case d.Busy:
		body.WriteString("\n" + styles.Mute("working..."))
	case d.Err != nil:
		body.WriteString("\n" + styles.Render(styles.ErrorStyle, d.Err.Error()))
		body.WriteString("\n" + styles.HelpBar("y", "retry", "n", "cancel"))
	default:
		body.WriteString("\n" + styles.HelpBar("y", "confirm", "n", "cancel"))
	}
	return styles.Render(styles.DialogStyle, body.String())
}

func (m tableModel) renderFooter() string {
	var lines []string

	res := m.snap.Result
	if res.Status == fetch.StatusError && res.Err != nil {
		lines = append(lines, styles.WarningMsg(fmt.Sprintf("Load failed: %v (showing previous rows, r to retry)", res.Err)))
	}
	if m.snap.OutOfRange {
		lines = append(lines, styles.WarningMsg(fmt.Sprintf("Page %d is past the last page (%d)", m.snap.State.PageIndex+1, m.snap.PageCount)))
	}
	if len(m.snap.Unavailable) > 0 {
		lines = append(lines, styles.Mute("Filter options unavailable: "+strings.Join(m.snap.Unavailable, ", ")))
	}

	if m.statusMsg != "" && time.Now().Before(m.statusUntil) {
		if m.statusErr {
			lines = append(lines, styles.Render(styles.ErrorStyle, m.statusMsg))
		} else {
			lines = append(lines, styles.SuccessMsg(m.statusMsg))
		}
	}

	switch {
	case m.snap.Dialog.Open:
	case m.mode == modeSearch:
		lines = append(lines, styles.HelpBar("enter", "apply", "esc", "cancel"))
	case m.mode == modeFilter:
		lines = append(lines, styles.HelpBar("space", "toggle", "tab", "next filter", "x", "clear", "esc", "close"))
	default:
		lines = append(lines, styles.HelpBar(
			"n/p", "page", "+/-", "size", "s", "sort", "/", "search", "f", "filter",
			"space", "select", "d", "delete", "r", "refresh", "u", "link", "q", "quit"))
	}
	return strings.Join(lines, "\n")
}
