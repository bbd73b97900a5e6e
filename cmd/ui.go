package main

import (
	"io"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

var barTheme = progressbar.Theme{
	Saucer:        "█",
	SaucerHead:    "█",
	SaucerPadding: "░",
	BarStart:      "[",
	BarEnd:        "]",
}

// Progress renders on w, normally stderr, so piped stdout carries only results.
func progressOptions(w io.Writer, description string, width int) []progressbar.Option {
	return []progressbar.Option{
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(width),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	}
}

// newDocBar counts documents toward total.
func newDocBar(w io.Writer, total int, description string) *progressbar.ProgressBar {
	opts := append(progressOptions(w, color.BlueString(description), 40),
		progressbar.OptionSetItsString("docs"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(barTheme),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)
	return progressbar.NewOptions(total, opts...)
}

// newSpinner is for work of unknown length; it clears itself on Finish.
func newSpinner(w io.Writer, description string) *progressbar.ProgressBar {
	opts := append(progressOptions(w, color.CyanString(description), 20),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	return progressbar.NewOptions(-1, opts...)
}
