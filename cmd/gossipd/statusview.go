package main

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"gossipcore"
)

// Palette mirrors the teacher's cmd/ployz/ui package: muted, dark
// terminal friendly, nothing flashy.
var (
	statusPurple = lipgloss.Color("99")
	statusDim    = lipgloss.Color("243")
	statusFaint  = lipgloss.Color("238")
)

var (
	statusLabelStyle = lipgloss.NewStyle().Foreground(statusDim)
	statusMutedStyle = lipgloss.NewStyle().Foreground(statusDim)
)

func statusLabel(s string) string { return statusLabelStyle.Render(s) }
func statusMuted(s string) string { return statusMutedStyle.Render(s) }

// renderMemberTable renders members in a rounded-border table, one row
// per Member, matching the teacher's ui.Table helper.
func renderMemberTable(members []gossipcore.Member) string {
	if len(members) == 0 {
		return statusMuted("no members in snapshot")
	}

	headerStyle := lipgloss.NewStyle().Foreground(statusPurple).Bold(true).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	rows := make([][]string, len(members))
	for i, m := range members {
		dc, _ := m.Property(gossipcore.PropertyDatacenter)
		rack, _ := m.Property(gossipcore.PropertyRack)
		rows[i] = []string{
			string(m.NodeID),
			m.Endpoint.String(),
			dc,
			rack,
			strconv.FormatInt(m.HeartbeatCounter, 10),
		}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(statusFaint)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("NODE ID", "ENDPOINT", "DATACENTER", "RACK", "HEARTBEAT").
		Rows(rows...)

	return t.String()
}

