package tui

import "github.com/Veraticus/riskdesk/internal/chat"

// answerMsg carries the pipeline's answer to a submitted question.
type answerMsg struct {
	query  string
	result chat.Result
}

// savedMsg reports the outcome of writing the last chart to disk.
type savedMsg struct {
	err  error
	path string
}
