// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders seedfilter's terminal output.
//
// Output comes in three formats. Human output is styled with lipgloss when
// stdout is a terminal and plain otherwise. JSON writes one object per
// line. CSV writes a header row followed by one row per record.
package ux

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Aleutian color palette.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Box       lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with its status color.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// Format selects how records are written.
type Format string

const (
	FormatHuman Format = "human"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
)

// ErrUnknownFormat is returned by ParseFormat.
var ErrUnknownFormat = errors.New("ux: unknown output format")

// ParseFormat accepts "human", "json", "csv", or "" for auto.
func ParseFormat(s string) (Format, bool, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return "", false, nil
	case FormatHuman, FormatJSON, FormatCSV:
		return f, true, nil
	default:
		return "", false, fmt.Errorf("%w: %q (want human, json or csv)", ErrUnknownFormat, s)
	}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectFormat returns human output for a terminal and JSON otherwise.
func DetectFormat(w io.Writer) Format {
	if IsTerminal(w) {
		return FormatHuman
	}
	return FormatJSON
}

// Printer writes human-readable lines, styled only when Styled is set.
type Printer struct {
	W      io.Writer
	Styled bool
}

// NewPrinter returns a Printer that styles output when w is a terminal.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{W: w, Styled: IsTerminal(w)}
}

func (p *Printer) render(s lipgloss.Style, text string) string {
	if !p.Styled {
		return text
	}
	return s.Render(text)
}

func (p *Printer) icon(i Icon) string {
	if !p.Styled {
		return string(i)
	}
	return i.Render()
}

// Title prints a heading.
func (p *Printer) Title(text string) {
	fmt.Fprintln(p.W, p.render(Styles.Title, text))
}

// Success prints text after a check mark.
func (p *Printer) Success(text string) {
	fmt.Fprintf(p.W, "%s %s\n", p.icon(IconSuccess), p.render(Styles.Success, text))
}

// Warning prints text after a warning sign.
func (p *Printer) Warning(text string) {
	fmt.Fprintf(p.W, "%s %s\n", p.icon(IconWarning), p.render(Styles.Warning, text))
}

// Error prints text after a cross.
func (p *Printer) Error(text string) {
	fmt.Fprintf(p.W, "%s %s\n", p.icon(IconError), p.render(Styles.Error, text))
}

// Field prints an indented "key: value" line.
func (p *Printer) Field(key string, value any) {
	fmt.Fprintf(p.W, "  %s %v\n", p.render(Styles.Muted, key+":"), value)
}

// Bullet prints an indented list item.
func (p *Printer) Bullet(text string) {
	fmt.Fprintf(p.W, "  %s %s\n", p.icon(IconBullet), text)
}

// Box prints title and content in a rounded box, or as plain lines when
// unstyled.
func (p *Printer) Box(title, content string) {
	if !p.Styled {
		fmt.Fprintf(p.W, "%s\n%s\n", title, content)
		return
	}
	fmt.Fprintln(p.W, Styles.Box.Render(Styles.Title.Render(title)+"\n"+content))
}

// ProgressBar renders current/total as a bar of width cells.
func (p *Printer) ProgressBar(current, total uint64, width int) string {
	if total == 0 || width <= 0 {
		return ""
	}
	if current > total {
		current = total
	}
	pct := float64(current) / float64(total)
	filled := int(pct * float64(width))
	bar := p.render(Styles.Success, strings.Repeat("█", filled)) +
		p.render(Styles.Muted, strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s %3.0f%%", bar, pct*100)
}
