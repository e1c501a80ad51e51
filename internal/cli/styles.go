// Package cli renders receipts, review queues and reports for the terminal.
package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette. Each color has a light and a dark terminal variant.
var (
	AccentColor  = lipgloss.AdaptiveColor{Light: "#3B5BDB", Dark: "#7AA2F7"}
	SuccessColor = lipgloss.AdaptiveColor{Light: "#2B8A3E", Dark: "#4ECDC4"}
	WarningColor = lipgloss.AdaptiveColor{Light: "#E67700", Dark: "#FFE66D"}
	ErrorColor   = lipgloss.AdaptiveColor{Light: "#C92A2A", Dark: "#FF6B6B"}
	InfoColor    = lipgloss.AdaptiveColor{Light: "#1098AD", Dark: "#95E1D3"}
	MutedColor   = lipgloss.AdaptiveColor{Light: "#868E96", Dark: "#666666"}
	BorderColor  = lipgloss.AdaptiveColor{Light: "#CED4DA", Dark: "#333333"}
)

var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(AccentColor).MarginBottom(1)
	SuccessStyle = lipgloss.NewStyle().Foreground(SuccessColor)
	WarningStyle = lipgloss.NewStyle().Foreground(WarningColor)
	ErrorStyle   = lipgloss.NewStyle().Foreground(ErrorColor)
	InfoStyle    = lipgloss.NewStyle().Foreground(InfoColor)
	SubtleStyle  = lipgloss.NewStyle().Foreground(MutedColor)
	BoldStyle    = lipgloss.NewStyle().Bold(true)

	// ReviewStyle marks items and receipts waiting on a human.
	ReviewStyle = lipgloss.NewStyle().Bold(true).Foreground(WarningColor)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(1, 2)

	// TableHeaderStyle underlines the header row of renderTable.
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(BorderColor)

	// TableCellStyle separates table columns.
	TableCellStyle = lipgloss.NewStyle().PaddingRight(2)
)

// Message icons.
const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	WarningIcon = "⚠️"
	InfoIcon    = "ℹ️"
	ReceiptIcon = "🧾"
	ChartIcon   = "📊"
	ReviewIcon  = "🔎"
)

func iconLine(style lipgloss.Style, icon, message string) string {
	return style.Render(icon + " " + message)
}

// FormatSuccess formats a success message.
func FormatSuccess(message string) string { return iconLine(SuccessStyle, SuccessIcon, message) }

// FormatError formats an error message.
func FormatError(message string) string { return iconLine(ErrorStyle, ErrorIcon, message) }

// FormatWarning formats a warning message.
func FormatWarning(message string) string { return iconLine(WarningStyle, WarningIcon, message) }

// FormatInfo formats an informational message.
func FormatInfo(message string) string { return iconLine(InfoStyle, InfoIcon, message) }

// FormatTitle formats a section title.
func FormatTitle(title string) string { return iconLine(TitleStyle, ReceiptIcon, title) }

// RenderBox draws content under title inside a rounded border.
func RenderBox(title, content string) string {
	var b strings.Builder
	b.WriteString(TitleStyle.UnsetMargins().Render(title))
	if content != "" {
		b.WriteByte('\n')
		b.WriteString(content)
	}
	return BoxStyle.Render(b.String())
}
