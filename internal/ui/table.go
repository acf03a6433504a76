package ui

import (
	"fmt"
	"screenshare/media"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// RoomRow is one line of the rooms table.
type RoomRow struct {
	ID         string
	Users      int
	Sharing    bool
	LastActive int64
}

func styleFunc(row, col int) lipgloss.Style {
	switch {
	case row == table.HeaderRow:
		return TableHeaderStyle
	case row%2 == 0:
		return TableRowStyle
	default:
		return TableRowAltStyle
	}
}

// RoomTableView renders active rooms using lipgloss/table.
func RoomTableView(rooms []RoomRow, now time.Time) string {
	if len(rooms) == 0 {
		return MutedStyle.Render("No active rooms")
	}

	rows := make([][]string, 0, len(rooms))
	for _, r := range rooms {
		sharing := "-"
		if r.Sharing {
			sharing = IconScreen
		}
		rows = append(rows, []string{r.ID, fmt.Sprintf("%d", r.Users), sharing, FormatAge(r.LastActive, now)})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Room", "Users", "Sharing", "Last active").
		Rows(rows...).
		StyleFunc(styleFunc).
		Render()
}

// StatsView renders a received stream's counters.
func StatsView(s media.StatsSnapshot) string {
	rate := "-"
	if secs := s.Elapsed.Seconds(); secs > 0 {
		rate = fmt.Sprintf("%.1f fps", float64(s.Frames)/secs)
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Metric", "Value").
		Rows(
			[]string{"Codec", s.Codec},
			[]string{"Packets", fmt.Sprintf("%d", s.Packets)},
			[]string{"Frames", fmt.Sprintf("%d", s.Frames)},
			[]string{"Lost", fmt.Sprintf("%d", s.Lost)},
			[]string{"Received", FormatSize(int64(s.Bytes))},
			[]string{"Frame rate", rate},
		).
		StyleFunc(styleFunc).
		Render()
}

// RoomBoxView shows the room a sharer is waiting in.
func RoomBoxView(roomID, serverURL string) string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(Success).
		Padding(1, 2)

	content := fmt.Sprintf("%s Room ready\n\n%s Room ID:  %s\n%s Relay:    %s",
		IconSuccess,
		IconRoom, BoldStyle.Foreground(Primary).Render(roomID),
		IconPeer, MutedStyle.Render(serverURL),
	)
	return boxStyle.Render(content)
}

func FormatAge(unixMillis int64, now time.Time) string {
	if unixMillis <= 0 {
		return "-"
	}
	age := now.Sub(time.UnixMilli(unixMillis)).Round(time.Second)
	if age < time.Second {
		return "just now"
	}
	return age.String() + " ago"
}

func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
